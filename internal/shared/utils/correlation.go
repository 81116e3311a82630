package utils

import (
	"context"

	"github.com/google/uuid"
)

type correlationKey struct{}

// WithCorrelationID stores the id that ties every log line and alert of
// one webhook delivery together.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationID returns the id stored by WithCorrelationID, or "".
func CorrelationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

func NewCorrelationID() string {
	return uuid.NewString()
}
