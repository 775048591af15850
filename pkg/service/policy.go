package service

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// PolicyKind discriminates the authentication policy variants.
type PolicyKind string

const (
	// KindJWT is a signed-token policy.
	KindJWT PolicyKind = "JwtPolicy"

	// KindKey is an opaque-key policy verified by an upstream endpoint.
	KindKey PolicyKind = "KeyPolicy"
)

// Mode controls how much of a policy is enforced.
type Mode string

const (
	// ModeVerify authenticates and authorizes.
	ModeVerify Mode = "VERIFY"

	// ModePresent only requires the credential to be present. Authorization
	// is skipped.
	ModePresent Mode = "PRESENT"
)

// DefaultKeyCheck is the payload field compared by opaque-key ownership checks.
const DefaultKeyCheck = "userId"

// AuthPolicy is a tagged union over the supported authentication policies.
// Exactly one of JWT and Key is set, matching Kind.
type AuthPolicy struct {
	Kind PolicyKind
	JWT  *JWTPolicy
	Key  *KeyPolicy
}

// JWTPolicy verifies HMAC-signed bearer tokens.
type JWTPolicy struct {
	// Mode is VERIFY or PRESENT.
	Mode Mode `validate:"oneof=VERIFY PRESENT"`

	// Secret is the HMAC secret, or a secret reference.
	Secret string `validate:"required_if=Mode VERIFY"`

	// Data is the claim holding the object used by ownership checks.
	// Empty means the whole claim set.
	Data string

	// PermissionsKey is the claim holding the caller's permission list.
	PermissionsKey string

	// Permissions must all be present in the permission claim.
	Permissions []string

	// Check is the dot path inside Data compared with the path segment.
	Check string

	// CheckPath is the template param compared with Check. Defaults to the
	// last element of Check.
	CheckPath string
}

// OwnerParam returns the template param name used by the ownership check.
func (p *JWTPolicy) OwnerParam() string {
	if p.CheckPath != "" {
		return p.CheckPath
	}
	if p.Check == "" {
		return ""
	}
	parts := strings.Split(p.Check, ".")
	return parts[len(parts)-1]
}

// KeyPolicy verifies opaque keys against an upstream endpoint.
type KeyPolicy struct {
	// Mode is VERIFY or PRESENT. Keys are always verified; PRESENT skips
	// authorization.
	Mode Mode `validate:"oneof=VERIFY PRESENT"`

	// VerifyEndpoint is called with the key header on cache misses.
	VerifyEndpoint string `validate:"required,url"`

	// KeyHeader is the request header carrying the key.
	KeyHeader string `validate:"required"`

	// Check is the payload field compared with the {Check} path segment.
	// Default: "userId"
	Check string

	// PermissionsKey names an object mapping route templates to granted methods.
	PermissionsKey string

	// PermissionsKeys is [pathKey, methodKey]: parallel arrays of templates
	// and their granted methods.
	PermissionsKeys []string `validate:"omitempty,len=2"`
}

// CheckField returns Check or its default.
func (p *KeyPolicy) CheckField() string {
	if p.Check == "" {
		return DefaultKeyCheck
	}
	return p.Check
}

// Mode returns the mode of whichever variant is set.
func (p *AuthPolicy) Mode() Mode {
	switch p.Kind {
	case KindJWT:
		return p.JWT.Mode
	case KindKey:
		return p.Key.Mode
	}
	return ModeVerify
}

// authPolicyWire is the flat document form shared by JSON and YAML.
type authPolicyWire struct {
	Type            string   `json:"type" yaml:"type"`
	Policy          Mode     `json:"policy,omitempty" yaml:"policy,omitempty"`
	JWTSecret       string   `json:"jwtSecret,omitempty" yaml:"jwtSecret,omitempty"`
	Data            string   `json:"data,omitempty" yaml:"data,omitempty"`
	PermissionsKey  string   `json:"permissionsKey,omitempty" yaml:"permissionsKey,omitempty"`
	Permissions     []string `json:"permissions,omitempty" yaml:"permissions,omitempty"`
	Check           string   `json:"check,omitempty" yaml:"check,omitempty"`
	CheckPath       string   `json:"checkPath,omitempty" yaml:"checkPath,omitempty"`
	VerifyEndpoint  string   `json:"verifyEndpoint,omitempty" yaml:"verifyEndpoint,omitempty"`
	KeyHeader       string   `json:"keyHeader,omitempty" yaml:"keyHeader,omitempty"`
	PermissionsKeys []string `json:"permissionsKeys,omitempty" yaml:"permissionsKeys,omitempty"`
}

func parseKind(t string) (PolicyKind, error) {
	// Fully qualified discriminators ("co.example.JwtPolicy") are accepted.
	switch {
	case strings.HasSuffix(t, string(KindJWT)):
		return KindJWT, nil
	case strings.HasSuffix(t, string(KindKey)):
		return KindKey, nil
	}
	return "", fmt.Errorf("unknown authentication policy type %q", t)
}

func parseMode(m Mode) Mode {
	switch strings.ToUpper(string(m)) {
	case "PRESENT", "PRESENT_ONLY":
		return ModePresent
	default:
		return ModeVerify
	}
}

func (w authPolicyWire) policy() (AuthPolicy, error) {
	kind, err := parseKind(w.Type)
	if err != nil {
		return AuthPolicy{}, err
	}

	switch kind {
	case KindJWT:
		return AuthPolicy{Kind: KindJWT, JWT: &JWTPolicy{
			Mode:           parseMode(w.Policy),
			Secret:         w.JWTSecret,
			Data:           w.Data,
			PermissionsKey: w.PermissionsKey,
			Permissions:    w.Permissions,
			Check:          w.Check,
			CheckPath:      w.CheckPath,
		}}, nil
	case KindKey:
		return AuthPolicy{Kind: KindKey, Key: &KeyPolicy{
			Mode:            parseMode(w.Policy),
			VerifyEndpoint:  w.VerifyEndpoint,
			KeyHeader:       w.KeyHeader,
			Check:           w.Check,
			PermissionsKey:  w.PermissionsKey,
			PermissionsKeys: w.PermissionsKeys,
		}}, nil
	}
	return AuthPolicy{}, fmt.Errorf("unhandled authentication policy type %q", kind)
}

func (p AuthPolicy) wire() authPolicyWire {
	w := authPolicyWire{Type: string(p.Kind)}
	switch p.Kind {
	case KindJWT:
		if p.JWT != nil {
			w.Policy = p.JWT.Mode
			w.JWTSecret = p.JWT.Secret
			w.Data = p.JWT.Data
			w.PermissionsKey = p.JWT.PermissionsKey
			w.Permissions = p.JWT.Permissions
			w.Check = p.JWT.Check
			w.CheckPath = p.JWT.CheckPath
		}
	case KindKey:
		if p.Key != nil {
			w.Policy = p.Key.Mode
			w.VerifyEndpoint = p.Key.VerifyEndpoint
			w.KeyHeader = p.Key.KeyHeader
			w.Check = p.Key.Check
			w.PermissionsKey = p.Key.PermissionsKey
			w.PermissionsKeys = p.Key.PermissionsKeys
		}
	}
	return w
}

// UnmarshalJSON decodes the "type"-discriminated document.
func (p *AuthPolicy) UnmarshalJSON(data []byte) error {
	var w authPolicyWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	parsed, err := w.policy()
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// MarshalJSON encodes the policy with its "type" discriminator.
func (p AuthPolicy) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.wire())
}

// UnmarshalYAML decodes the "type"-discriminated document.
func (p *AuthPolicy) UnmarshalYAML(value *yaml.Node) error {
	var w authPolicyWire
	if err := value.Decode(&w); err != nil {
		return err
	}
	parsed, err := w.policy()
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// MarshalYAML encodes the policy with its "type" discriminator.
func (p AuthPolicy) MarshalYAML() (interface{}, error) {
	return p.wire(), nil
}
