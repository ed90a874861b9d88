// Package api assembles the medora HTTP API.
//
// Requests pass through, in order: request id, logging, panic recovery,
// body size limit, HTTP metrics, the authentication resolver and the rate
// limiter. Each route then passes the authorization gate with the single
// permission key it declares before reaching its handler.
//
//	srv, err := api.NewServer(api.Deps{Config: cfg, DB: db, Redis: rdb, Logger: logger, Tokens: tokens})
//	http.ListenAndServe(":8080", srv)
//
// Health probes and /metrics are served by NewOpsHandler on a separate
// port.
package api
