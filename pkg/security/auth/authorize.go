package auth

import (
	"slices"
	"strings"

	"mercator-hq/kate/pkg/routing"
	"mercator-hq/kate/pkg/service"
)

// Target is the request being authorized.
type Target struct {
	// Template is the matched route template.
	Template string

	// Path is the concrete request path.
	Path string

	// Method is the request method.
	Method string
}

// Authorize applies policy to principal for target. PRESENT-mode policies
// always pass. Rejections are returned as *Failure.
func Authorize(policy *service.AuthPolicy, principal *Principal, target Target) error {
	if policy == nil || policy.Mode() == service.ModePresent {
		return nil
	}
	if principal == nil {
		return unauthorized(MsgInvalidToken, nil)
	}

	switch policy.Kind {
	case service.KindJWT:
		return authorizeJWT(policy.JWT, principal, target)
	case service.KindKey:
		return authorizeKey(policy.Key, principal, target)
	}
	return forbidden(MsgMissingPermission, nil)
}

func authorizeJWT(policy *service.JWTPolicy, principal *Principal, target Target) error {
	raw, ok := Resolve(principal.Claims, policy.Data)
	data, isMap := raw.(map[string]any)
	if !ok || !isMap {
		return unauthorized(MsgInvalidToken, nil)
	}

	if policy.Check != "" {
		if segment, bound := routing.Param(target.Template, target.Path, policy.OwnerParam()); bound {
			value, found := Resolve(data, policy.Check)
			if !found || Stringify(value) != segment {
				return forbidden(MsgMissingPermission, nil)
			}
		}
	}

	if policy.PermissionsKey == "" && len(policy.Permissions) == 0 {
		return nil
	}
	raw, ok = Resolve(principal.Claims, policy.PermissionsKey)
	if !ok || policy.PermissionsKey == "" {
		return forbidden(MsgMissingPermission, nil)
	}
	granted, ok := stringList(raw)
	if !ok {
		return forbidden(MsgMissingPermission, nil)
	}
	for _, required := range policy.Permissions {
		if !slices.Contains(granted, required) {
			return forbidden(MsgMissingPermission, nil)
		}
	}
	return nil
}

func authorizeKey(policy *service.KeyPolicy, principal *Principal, target Target) error {
	payload := principal.Payload

	if len(policy.PermissionsKeys) == 2 {
		if !grantedByParallelArrays(payload, policy.PermissionsKeys[0], policy.PermissionsKeys[1], target) {
			return forbidden(MsgMissingPermission, nil)
		}
	}
	if policy.PermissionsKey != "" {
		if !grantedByRouteMap(payload, policy.PermissionsKey, target) {
			return forbidden(MsgMissingPermission, nil)
		}
	}

	check := policy.CheckField()
	if segment, bound := routing.Param(target.Template, target.Path, check); bound {
		value, found := Resolve(payload, check)
		if !found || Stringify(value) != segment {
			return forbidden(MsgNotOwner, nil)
		}
	}
	return nil
}

// grantedByParallelArrays checks payload[pathKey] for the template and the
// method list at the same index of payload[methodKey].
func grantedByParallelArrays(payload map[string]any, pathKey, methodKey string, target Target) bool {
	paths, ok := stringList(payload[pathKey])
	if !ok {
		return false
	}
	idx := slices.Index(paths, target.Template)
	if idx < 0 {
		return false
	}
	methods, ok := payload[methodKey].([]any)
	if !ok || idx >= len(methods) {
		return false
	}
	return grantsMethod(methods[idx], target.Method)
}

// grantedByRouteMap checks payload[key][template] for the method.
func grantedByRouteMap(payload map[string]any, key string, target Target) bool {
	routes, ok := payload[key].(map[string]any)
	if !ok {
		return false
	}
	grant, ok := routes[target.Template]
	if !ok {
		return false
	}
	return grantsMethod(grant, target.Method)
}

// grantsMethod accepts a list of methods, or an object whose truthy keys
// are methods or whose "methods" field lists them.
func grantsMethod(grant any, method string) bool {
	if list, ok := stringList(grant); ok {
		return slices.ContainsFunc(list, func(m string) bool { return strings.EqualFold(m, method) })
	}
	obj, ok := grant.(map[string]any)
	if !ok {
		return false
	}
	for k, v := range obj {
		if strings.EqualFold(k, method) && truthy(v) {
			return true
		}
	}
	if methods, ok := obj["methods"]; ok {
		return grantsMethod(methods, method)
	}
	return false
}

func truthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case nil:
		return false
	case string:
		return x != "" && !strings.EqualFold(x, "false")
	case float64:
		return x != 0
	}
	return true
}
