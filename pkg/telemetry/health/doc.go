// Package health serves the gateway's liveness, readiness and version
// endpoints.
//
// Liveness answers 200 whenever the process can serve HTTP. Readiness runs
// the registered checks concurrently, each bounded by the check timeout,
// and answers 503 when any fails. The gateway registers checks for the
// service store and the request log storage:
//
//	checker := health.New(cfg.Telemetry.Health.CheckTimeout)
//	checker.Register("services", health.PingCheck(store))
//	checker.Register("request_log", health.PingCheck(storage))
//	checker.Mount(router, cfg.Telemetry.Health, health.NewVersionInfo(version, commit, date))
package health
