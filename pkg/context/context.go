package context

import (
	"context"

	"github.com/google/uuid"
)

type ContextKey string

var (
	RequestIDKey      = ContextKey("X-Request-Id")
	UserIDKey         = ContextKey("X-User-Id")
	MunicipalityIDKey = ContextKey("X-Municipality-Id")
)

func SetRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

func GetRequestID(ctx context.Context) string {
	value, ok := ctx.Value(RequestIDKey).(string)
	if !ok {
		return ""
	}
	return value
}

func SetUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

func GetUserID(ctx context.Context) string {
	value, ok := ctx.Value(UserIDKey).(string)
	if !ok {
		return ""
	}
	return value
}

func SetMunicipalityID(ctx context.Context, municipalityID string) context.Context {
	return context.WithValue(ctx, MunicipalityIDKey, municipalityID)
}

func GetMunicipalityID(ctx context.Context) string {
	value, ok := ctx.Value(MunicipalityIDKey).(string)
	if !ok {
		return ""
	}
	return value
}

// GetMunicipalityUUID parses the municipality bound to ctx; ok is false when absent or malformed.
func GetMunicipalityUUID(ctx context.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(GetMunicipalityID(ctx))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
