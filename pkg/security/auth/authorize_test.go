package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"mercator-hq/kate/pkg/service"
)

func jwtPrincipal(claims map[string]any) *Principal {
	return &Principal{Kind: service.KindJWT, Verified: true, Claims: claims}
}

func keyPrincipal(payload map[string]any) *Principal {
	return &Principal{Kind: service.KindKey, Verified: true, Payload: payload}
}

func TestAuthorize_JWT(t *testing.T) {
	ordersOfUser := Target{Template: "/users/{userId}/orders", Path: "/users/42/orders", Method: "GET"}

	claims := map[string]any{
		"data":        map[string]any{"user": map[string]any{"userId": float64(42)}},
		"permissions": []any{"orders:read", "orders:write"},
	}

	tests := []struct {
		name       string
		policy     *service.JWTPolicy
		claims     map[string]any
		target     Target
		wantStatus int
		wantMsg    string
	}{
		{
			name:   "owner with permissions",
			policy: &service.JWTPolicy{Data: "data", Check: "user.userId", PermissionsKey: "permissions", Permissions: []string{"orders:read"}},
			claims: claims,
			target: ordersOfUser,
		},
		{
			name:       "different owner",
			policy:     &service.JWTPolicy{Data: "data", Check: "user.userId"},
			claims:     claims,
			target:     Target{Template: "/users/{userId}/orders", Path: "/users/7/orders", Method: "GET"},
			wantStatus: http.StatusForbidden,
			wantMsg:    MsgMissingPermission,
		},
		{
			name:   "template without owner param",
			policy: &service.JWTPolicy{Data: "data", Check: "user.userId"},
			claims: claims,
			target: Target{Template: "/orders", Path: "/orders", Method: "GET"},
		},
		{
			name:   "explicit check path",
			policy: &service.JWTPolicy{Data: "data", Check: "user.userId", CheckPath: "id"},
			claims: claims,
			target: Target{Template: "/accounts/{id}", Path: "/accounts/42", Method: "GET"},
		},
		{
			name:       "missing data claim",
			policy:     &service.JWTPolicy{Data: "profile"},
			claims:     claims,
			target:     ordersOfUser,
			wantStatus: http.StatusUnauthorized,
			wantMsg:    MsgInvalidToken,
		},
		{
			name:       "missing permission",
			policy:     &service.JWTPolicy{PermissionsKey: "permissions", Permissions: []string{"admin"}},
			claims:     claims,
			target:     ordersOfUser,
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "permission claim absent",
			policy:     &service.JWTPolicy{PermissionsKey: "scopes", Permissions: []string{"orders:read"}},
			claims:     claims,
			target:     ordersOfUser,
			wantStatus: http.StatusForbidden,
		},
		{
			name:   "no permission requirements",
			policy: &service.JWTPolicy{},
			claims: map[string]any{},
			target: ordersOfUser,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.policy.Mode = service.ModeVerify
			policy := &service.AuthPolicy{Kind: service.KindJWT, JWT: tt.policy}

			err := Authorize(policy, jwtPrincipal(tt.claims), tt.target)
			if tt.wantStatus == 0 {
				if err != nil {
					t.Fatalf("Authorize() error = %v", err)
				}
				return
			}
			f := wantFailure(t, err, tt.wantStatus)
			if tt.wantMsg != "" && f.Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", f.Message, tt.wantMsg)
			}
		})
	}
}

func TestAuthorize_PresentSkips(t *testing.T) {
	policy := &service.AuthPolicy{Kind: service.KindJWT, JWT: &service.JWTPolicy{
		Mode: service.ModePresent, PermissionsKey: "permissions", Permissions: []string{"admin"},
	}}
	if err := Authorize(policy, &Principal{Kind: service.KindJWT}, Target{Template: "/", Path: "/", Method: "GET"}); err != nil {
		t.Errorf("PRESENT policy should skip authorization: %v", err)
	}
}

func TestAuthorize_Key(t *testing.T) {
	target := Target{Template: "/users/{userId}", Path: "/users/42", Method: "GET"}

	tests := []struct {
		name       string
		policy     *service.KeyPolicy
		payload    map[string]any
		target     Target
		wantStatus int
		wantMsg    string
	}{
		{
			name:    "owner",
			policy:  &service.KeyPolicy{},
			payload: map[string]any{"userId": "42"},
			target:  target,
		},
		{
			name:       "not owner",
			policy:     &service.KeyPolicy{},
			payload:    map[string]any{"userId": "7"},
			target:     target,
			wantStatus: http.StatusForbidden,
			wantMsg:    MsgNotOwner,
		},
		{
			name:    "custom check field",
			policy:  &service.KeyPolicy{Check: "tenant"},
			payload: map[string]any{"tenant": "acme"},
			target:  Target{Template: "/tenants/{tenant}", Path: "/tenants/acme", Method: "GET"},
		},
		{
			name:   "parallel arrays grant",
			policy: &service.KeyPolicy{PermissionsKeys: []string{"paths", "methods"}},
			payload: map[string]any{
				"userId":  "42",
				"paths":   []any{"/orders", "/users/{userId}"},
				"methods": []any{[]any{"POST"}, []any{"GET", "PUT"}},
			},
			target: target,
		},
		{
			name:   "parallel arrays wrong method",
			policy: &service.KeyPolicy{PermissionsKeys: []string{"paths", "methods"}},
			payload: map[string]any{
				"userId":  "42",
				"paths":   []any{"/users/{userId}"},
				"methods": []any{[]any{"PUT"}},
			},
			target:     target,
			wantStatus: http.StatusForbidden,
			wantMsg:    MsgMissingPermission,
		},
		{
			name:   "parallel arrays unknown route",
			policy: &service.KeyPolicy{PermissionsKeys: []string{"paths", "methods"}},
			payload: map[string]any{
				"paths":   []any{"/orders"},
				"methods": []any{[]any{"GET"}},
			},
			target:     target,
			wantStatus: http.StatusForbidden,
		},
		{
			name:   "route map list grant",
			policy: &service.KeyPolicy{PermissionsKey: "grants"},
			payload: map[string]any{
				"userId": "42",
				"grants": map[string]any{"/users/{userId}": []any{"GET"}},
			},
			target: target,
		},
		{
			name:   "route map object grant",
			policy: &service.KeyPolicy{PermissionsKey: "grants"},
			payload: map[string]any{
				"userId": "42",
				"grants": map[string]any{"/users/{userId}": map[string]any{"GET": true, "DELETE": false}},
			},
			target: target,
		},
		{
			name:   "route map object denies",
			policy: &service.KeyPolicy{PermissionsKey: "grants"},
			payload: map[string]any{
				"userId": "42",
				"grants": map[string]any{"/users/{userId}": map[string]any{"GET": false}},
			},
			target:     target,
			wantStatus: http.StatusForbidden,
		},
		{
			name:   "route map methods field",
			policy: &service.KeyPolicy{PermissionsKey: "grants"},
			payload: map[string]any{
				"userId": "42",
				"grants": map[string]any{"/users/{userId}": map[string]any{"methods": []any{"get"}}},
			},
			target: target,
		},
		{
			name:       "route map missing",
			policy:     &service.KeyPolicy{PermissionsKey: "grants"},
			payload:    map[string]any{"userId": "42"},
			target:     target,
			wantStatus: http.StatusForbidden,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.policy.Mode = service.ModeVerify
			policy := &service.AuthPolicy{Kind: service.KindKey, Key: tt.policy}

			err := Authorize(policy, keyPrincipal(tt.payload), tt.target)
			if tt.wantStatus == 0 {
				if err != nil {
					t.Fatalf("Authorize() error = %v", err)
				}
				return
			}
			f := wantFailure(t, err, tt.wantStatus)
			if tt.wantMsg != "" && f.Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", f.Message, tt.wantMsg)
			}
		})
	}
}

func TestPrincipal_Lookup(t *testing.T) {
	p := jwtPrincipal(map[string]any{"data": map[string]any{"id": float64(7), "ratio": 1.5, "name": "ann"}})

	tests := map[string]string{
		"data.id":    "7",
		"data.ratio": "1.5",
		"data.name":  "ann",
	}
	for path, want := range tests {
		if got, ok := p.Lookup(path); !ok || got != want {
			t.Errorf("Lookup(%q) = %q, %v; want %q", path, got, ok, want)
		}
	}
	if _, ok := p.Lookup("data.missing"); ok {
		t.Error("Lookup of a missing path should report false")
	}
	if _, ok := p.Lookup("data.name.deeper"); ok {
		t.Error("Lookup through a scalar should report false")
	}

	var nilPrincipal *Principal
	if _, ok := nilPrincipal.Lookup("x"); ok {
		t.Error("nil principal should resolve nothing")
	}
}

func TestRequireAdmin(t *testing.T) {
	keys := NewAdminKeys("admin-key", "")
	if !keys.Configured() {
		t.Fatal("keys should be configured")
	}

	var denied int
	handler := RequireAdmin(keys, func(w http.ResponseWriter, r *http.Request, status int) {
		denied = status
		w.WriteHeader(status)
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer admin-key", http.StatusNoContent},
		{"wrong key", "Bearer nope", http.StatusUnauthorized},
		{"missing", "", http.StatusUnauthorized},
		{"no scheme", "admin-key", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			denied = 0
			r := httptest.NewRequest(http.MethodGet, "/_services", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)

			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
			if tt.want == http.StatusUnauthorized && denied != http.StatusUnauthorized {
				t.Error("deny callback not invoked")
			}
		})
	}

	keys.Set()
	if keys.Configured() || keys.Valid("admin-key") {
		t.Error("Set() with no keys should reject everything")
	}
}
