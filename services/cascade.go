package services

import "context"

// MaxCascadeDepth bounds Award -> badge evaluation -> Award re-entry.
// An award at this depth is still recorded but does not evaluate badges.
const MaxCascadeDepth = 3

// maxCASRetries bounds optimistic-version retries on contended rows.
const maxCASRetries = 5

type cascadeDepthKey struct{}

func cascadeDepth(ctx context.Context) int {
	if d, ok := ctx.Value(cascadeDepthKey{}).(int); ok {
		return d
	}
	return 0
}

func withCascadeDepth(ctx context.Context, depth int) context.Context {
	return context.WithValue(ctx, cascadeDepthKey{}, depth)
}
