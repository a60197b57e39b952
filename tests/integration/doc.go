// Package integration runs the smoke test against a real PostgreSQL container
// started with testcontainers-go.
//
// Run with: go test -tags=integration ./tests/integration/...
package integration
