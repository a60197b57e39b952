package dbcontainer

import "context"

type runIDKey struct{}

// ContextWithRunID makes Start label its container with runID instead of a
// generated one, so a CLI run and its container share one identifier in logs
// and in `docker ps --filter label=pgsmoke.run-id=...`.
func ContextWithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// runIDFrom returns the run ID set by ContextWithRunID, if any.
func runIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(runIDKey{}).(string)
	return id, ok && id != ""
}
