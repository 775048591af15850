package service

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"mercator-hq/kate/pkg/routing"
)

// FieldError is a single invalid field of a service definition.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ConfigurationError reports every invalid field of a service definition.
type ConfigurationError struct {
	Service string
	Errors  []FieldError
}

func (e *ConfigurationError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("service %q: invalid configuration", e.Service)
	}
	msgs := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		msgs[i] = fe.Error()
	}
	return fmt.Sprintf("service %q: invalid configuration: %s", e.Service, strings.Join(msgs, "; "))
}

func (e *ConfigurationError) add(field, msg string) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: msg})
}

// IsConfigurationError reports whether err is a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("uritemplate", uriTemplate)
		_ = validate.RegisterValidation("httpmethod", httpMethod)
	})
	return validate
}

func uriTemplate(fl validator.FieldLevel) bool {
	uri := fl.Field().String()
	if !strings.HasPrefix(uri, "/") {
		return false
	}
	depth := 0
	for _, c := range uri {
		switch c {
		case '{':
			depth++
			if depth > 1 {
				return false
			}
		case '}':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}

func httpMethod(fl validator.FieldLevel) bool {
	return routing.IsMethod(strings.ToUpper(fl.Field().String()))
}

func tagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_if":
		return "is required when policy is VERIFY"
	case "url":
		return fmt.Sprintf("%q is not a valid URL", fe.Value())
	case "uritemplate":
		return fmt.Sprintf("%q must start with / and have balanced braces", fe.Value())
	case "httpmethod":
		return fmt.Sprintf("%q is not an HTTP method", fe.Value())
	case "oneof":
		return fmt.Sprintf("%v must be one of [%s]", fe.Value(), fe.Param())
	case "len":
		return fmt.Sprintf("must have exactly %s elements", fe.Param())
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}

// Validate checks a service definition. The returned error is a
// *ConfigurationError listing every problem found.
func Validate(svc *Service) error {
	if svc == nil {
		return &ConfigurationError{Errors: []FieldError{{Field: "service", Message: "is required"}}}
	}
	cerr := &ConfigurationError{Service: svc.Name}

	if err := getValidator().Struct(svc); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			cerr.add(fe.StructNamespace(), tagMessage(fe))
		}
	}

	for i := range svc.Routes {
		validatePolicy(cerr, fmt.Sprintf("Service.Routes[%d].AuthPolicy", i), svc.Routes[i].AuthPolicy)
		if svc.Routes[i].Queue != "" && svc.MessageQueue == nil {
			cerr.add(fmt.Sprintf("Service.Routes[%d].Queue", i), "requires message_queue on the service")
		}
	}
	for i, agg := range svc.Aggregates {
		prefix := fmt.Sprintf("Service.Aggregates[%d]", i)
		validatePolicy(cerr, prefix+".AuthPolicy", agg.AuthPolicy)
		// Untagged children are keyed by "" and an empty aggregate answers
		// 500, so only repeated tags are rejected.
		tags := make(map[string]bool, len(agg.Routes))
		for j, child := range agg.Routes {
			if child.Tag == "" {
				continue
			}
			if tags[child.Tag] {
				cerr.add(fmt.Sprintf("%s.Routes[%d].Tag", prefix, j), fmt.Sprintf("duplicate tag %q", child.Tag))
			}
			tags[child.Tag] = true
		}
	}

	if len(cerr.Errors) > 0 {
		return cerr
	}
	return nil
}

func validatePolicy(cerr *ConfigurationError, field string, p *AuthPolicy) {
	if p == nil {
		return
	}
	switch p.Kind {
	case KindJWT:
		if p.JWT == nil {
			cerr.add(field, "JwtPolicy has no settings")
			return
		}
		if p.JWT.CheckPath != "" && p.JWT.Check == "" {
			cerr.add(field+".Check", "is required when checkPath is set")
		}
	case KindKey:
		if p.Key == nil {
			cerr.add(field, "KeyPolicy has no settings")
			return
		}
		if p.Key.PermissionsKey != "" && len(p.Key.PermissionsKeys) > 0 {
			cerr.add(field, "permissionsKey and permissionsKeys are mutually exclusive")
		}
	default:
		cerr.add(field+".Kind", fmt.Sprintf("unknown policy type %q", p.Kind))
	}
}
