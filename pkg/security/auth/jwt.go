package auth

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"mercator-hq/kate/pkg/service"
)

const bearerPrefix = "Bearer "

var hmacMethods = []string{
	jwt.SigningMethodHS256.Alg(),
	jwt.SigningMethodHS384.Alg(),
	jwt.SigningMethodHS512.Alg(),
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", false
	}
	return strings.TrimPrefix(header, bearerPrefix), true
}

// AuthenticateJWT checks the bearer token of r against policy. In PRESENT
// mode only the header syntax is checked. secret is the resolved HMAC secret.
func AuthenticateJWT(r *http.Request, policy *service.JWTPolicy, secret string) (*Principal, error) {
	token, ok := BearerToken(r)
	if !ok {
		return nil, unauthorized(MsgMissingBearerToken, nil)
	}

	principal := &Principal{Kind: service.KindJWT, Token: token}
	if policy.Mode == service.ModePresent {
		return principal, nil
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods(hmacMethods))
	if err != nil {
		return nil, unauthorized(err.Error(), err)
	}

	principal.Verified = true
	principal.Claims = map[string]any(claims)
	return principal, nil
}
