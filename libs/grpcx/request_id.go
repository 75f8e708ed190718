package grpcx

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/grpc/metadata"
)

// RequestIDMetadataKey mirrors the HTTP X-Request-Id header. gRPC metadata keys are lowercase.
const RequestIDMetadataKey = "x-request-id"

const maxRequestIDLen = 128

type requestIDKey struct{}

func RequestIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey{}).(string)
	return v
}

func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, id)
}

// incomingRequestID returns the caller's request id when it is usable, otherwise a new one.
func incomingRequestID(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		for _, v := range md.Get(RequestIDMetadataKey) {
			if v = strings.TrimSpace(v); v != "" && len(v) <= maxRequestIDLen {
				return v
			}
		}
	}
	return uuid.NewString()
}
