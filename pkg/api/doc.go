// Package api implements the HTTP interface of the fibpipe API tier.
//
// New(svc, logger) returns an http.Handler that serves:
//
//	GET  /                    plain-text "Hi"
//	GET  /api/values/all      every durable record ([]RecordResponse)
//	GET  /api/values/current  the cache snapshot (map of index to value)
//	POST /api/values          submit {"index": "N"}; the index may also be a JSON number
//	GET  /api/health          collaborator readiness (HealthResponse)
//
// Errors are JSON objects of the form {"error": "..."}. Rejected indices get
// 422, a collaborator that is not ready gets 503, and any other failure gets
// 500. Unsupported methods get 405.
package api
