/*
Package auth authenticates and authorizes gateway callers.

Two policy kinds are supported, matching service.AuthPolicy:

  - Signed tokens. AuthenticateJWT checks "Authorization: Bearer <token>".
    In VERIFY mode the HMAC signature is verified and the claims become the
    Principal's Claims; in PRESENT mode only the header syntax is checked.
  - Opaque keys. KeyAuthenticator reads the policy's key header, consults
    the KeyCache and on a miss calls the policy's verify endpoint. A 2xx JSON
    object is cached until Invalidate is called.

Authorize then enforces ownership and permissions for the matched route:

	err := auth.Authorize(route.AuthPolicy, principal, auth.Target{
		Template: "/users/{userId}/orders",
		Path:     "/users/42/orders",
		Method:   "GET",
	})
	if f, ok := auth.AsFailure(err); ok {
		// respond f.Status {"error": f.Message}
	}

Administrative endpoints are guarded separately by RequireAdmin with a set
of AdminKeys.
*/
package auth
