// Package http implements the HTTP handlers for the match staging service.
// It is a thin layer over the pipeline service: handlers parse and validate
// requests, resolve the staging session from the X-Session-ID header, and
// translate pipeline errors into the JSON error envelope.
//
// # Request Flow
//
//	HTTP Request → Chi Router → Handler → PipelineService → Collaborator
//	                                ↓
//	HTTP Response ← error mapping ←─┘
//
// No business logic lives here; the disjunctive novelty rule, the feature
// fan-out and the commit gate all belong to the internal packages behind
// the service.
package http
