// Package api holds end-to-end checks for a running attachment server.
//
// Start the server, then run the suite with the api build tag:
//
//	go run ./cmd/server
//	go test -tags=api ./tests/api/... -v
//
// API_BASE_URL selects the server (default http://localhost:8080).
package api
