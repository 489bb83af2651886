package utils

import (
	"context"

	"github.com/google/uuid"
	"github.com/mmdatafocus/pharmacy_backend/appctx"
)

var (
	ContextKeyActor         = appctx.ContextKeyActor
	ContextKeyCorrelationId = appctx.ContextKeyCorrelationId
)

// GetActorFromContext falls back to the system actor so ledger rows always carry an identity.
func GetActorFromContext(ctx context.Context) appctx.Actor {
	if ctx == nil {
		return appctx.SystemActor
	}
	if a, ok := appctx.GetActor(ctx); ok {
		return a
	}
	return appctx.SystemActor
}

func SetActorInContext(ctx context.Context, actor appctx.Actor) context.Context {
	return appctx.Set(ctx, ContextKeyActor, actor)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}

// CorrelationIdOrNew returns the request correlation id, minting one when the caller had none.
func CorrelationIdOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}
