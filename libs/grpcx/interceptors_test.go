package grpcx

import (
	"context"
	"testing"

	"github.com/appbelezeiro/belezeiro-sub003/libs/httpx"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

func TestUnaryServerRequestIDInterceptorUsesIncomingID(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(RequestIDMetadataKey, "req-1"))
	var seen string
	_, err := UnaryServerRequestIDInterceptor()(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/x"}, func(ctx context.Context, req any) (any, error) {
		seen = RequestIDFromContext(ctx)
		return nil, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen != "req-1" {
		t.Fatalf("expected req-1, got %q", seen)
	}
}

func TestUnaryServerRequestIDInterceptorGeneratesID(t *testing.T) {
	var seen string
	_, _ = UnaryServerRequestIDInterceptor()(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/x"}, func(ctx context.Context, req any) (any, error) {
		seen = RequestIDFromContext(ctx)
		return nil, nil
	})
	if seen == "" {
		t.Fatal("expected generated request id")
	}
}

func TestRequestIDSharedWithHTTP(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-2")
	if got := httpx.RequestIDFromContext(ctx); got != "req-2" {
		t.Fatalf("expected HTTP helpers to see req-2, got %q", got)
	}
}
