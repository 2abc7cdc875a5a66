package grpcx

import (
	"context"

	"github.com/appbelezeiro/belezeiro-sub003/libs/httpx"
	"github.com/google/uuid"
)

// RequestIDMetadataKey carries the request id in gRPC metadata.
const RequestIDMetadataKey = "x-request-id"

// RequestIDFromContext reads the id stored by either transport; gRPC and HTTP share one context key.
func RequestIDFromContext(ctx context.Context) string {
	return httpx.RequestIDFromContext(ctx)
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return httpx.ContextWithRequestID(ctx, id)
}

func NewRequestID() string {
	return uuid.NewString()
}
