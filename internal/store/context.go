package store

import "context"

type contextKey string

const operationIDKey contextKey = "operation_id"

// WithOperationID attaches the ID of the user intent a store call belongs to.
// Remote implementations forward it so both sides log the same ID.
func WithOperationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, operationIDKey, id)
}

// OperationID returns the operation ID stored in ctx, if any.
func OperationID(ctx context.Context) string {
	id, _ := ctx.Value(operationIDKey).(string)
	return id
}
