// Package pipeline implements the ordered stage execution model of the gateway.
//
// A Pipeline is a fixed list of stages built once per route. Each stage
// inspects the request-scoped Exchange and returns an explicit Result: either
// Continue, which hands control to the next stage, or Respond, which
// terminates the chain with a Response. Later stages never run once a stage
// has responded.
//
// The canonical ordering used by the gateway is:
//
//	[Authentication?, Authorization?, RateLimit, MessagePublish?, Forward|Aggregate]
//
// If the chain is exhausted without any stage responding, Execute returns a
// 500 response, so every request terminates explicitly. A panic inside a stage
// is recovered and also degrades to a 500 whose body carries the panic message
// but never a stack trace.
//
// # Usage
//
//	p := pipeline.New([]pipeline.Stage{authn, limiter, forward},
//	    pipeline.WithTracer(tracer))
//
//	ex := pipeline.NewExchange(r, "/users/{id}", http.MethodGet)
//	resp := p.Execute(ctx, ex)
//	resp.Write(w)
package pipeline
