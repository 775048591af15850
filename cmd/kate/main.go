// Kate is a programmable API gateway.
//
// Services are declared as JSON or YAML documents naming a base URL and the
// routes it serves. Each route is compiled into a request pipeline that can
// authenticate callers by JWT or by key verification against an upstream,
// enforce ownership and permissions, apply token-bucket rate limits, publish
// bodies to a message queue, aggregate several upstream calls, and finally
// proxy the request.
//
// Usage:
//
//	# Start the gateway with the defaults and KATE_* overrides
//	kate run
//
//	# Start with a configuration file
//	kate run --config /etc/kate/kate.yaml
//
//	# Check a configuration and its services file
//	kate validate --services services.yaml
//
//	# Show the route table a services file produces
//	kate routes --services services.yaml --output json
//
//	# Show version information
//	kate version
package main

import "os"

func main() {
	os.Exit(Execute())
}
