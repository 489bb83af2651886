package appctx

import "context"

// ContextKey is the shared type for all context keys in this codebase.
// Keeping it in a tiny package avoids import cycles (config <-> utils).
type ContextKey string

func (c ContextKey) String() string { return string(c) }

var (
	ContextKeyActor         = ContextKey("Actor")
	ContextKeyCorrelationId = ContextKey("CorrelationId")
)

// Actor is the authenticated user performing an operation.
// It is resolved once at the request boundary and carried on the context.
type Actor struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

// SystemActor is used by scheduled jobs and CLI commands.
var SystemActor = Actor{ID: 0, Username: "system", Name: "System"}

// Label returns the identifier written to ledger and audit rows.
func (a Actor) Label() string {
	if a.Username != "" {
		return a.Username
	}
	if a.Name != "" {
		return a.Name
	}
	return "unknown"
}

func GetString(ctx context.Context, key ContextKey) (string, bool) {
	v, ok := ctx.Value(key).(string)
	return v, ok
}

func GetActor(ctx context.Context) (Actor, bool) {
	v, ok := ctx.Value(ContextKeyActor).(Actor)
	return v, ok
}

func Set(ctx context.Context, key ContextKey, value any) context.Context {
	return context.WithValue(ctx, key, value)
}
