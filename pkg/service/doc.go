// Package service defines the declarative service documents the gateway
// binds routes from.
//
// A document is a list of services, each naming an upstream base URL, its
// forwarded routes, its aggregate endpoints and an optional message broker.
// Documents load from JSON or YAML; authentication policies are
// discriminated by their "type" field:
//
//	services:
//	  - name: users
//	    baseUrl: http://users:8080
//	    routes:
//	      - uri: /users/{userId}
//	        methods: [GET, PUT]
//	        authentication_policy:
//	          type: JwtPolicy
//	          policy: VERIFY
//	          jwtSecret: ${env:USERS_JWT_SECRET}
//	          check: userId
//	        rate_limit_policy:
//	          limit: 100
//	          refreshTimeSeconds: 60
//
// Validate reports every problem in a document at once. Merge folds a
// partial document into the current set the way the admin API does.
package service
