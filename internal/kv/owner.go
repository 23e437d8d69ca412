package kv

import "context"

// ownerTokenKey is the context key carrying the calling task's lock-owner
// token, enabling reentrant TryLock calls within the same logical
// operation (e.g. a handler that acquires lock:draft:<id> and then calls
// a helper that also acquires it) without deadlocking itself.
type ownerTokenKey struct{}

// WithOwnerToken returns a context carrying token as the reentrancy
// identity for subsequent Locker.TryLock calls. Callers that want
// reentrancy across nested calls must thread this context through.
func WithOwnerToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, ownerTokenKey{}, token)
}

// OwnerTokenFrom extracts the reentrancy token from ctx, or "" if none
// was set (the lock will not be reentrant for that call).
func OwnerTokenFrom(ctx context.Context) string {
	v, _ := ctx.Value(ownerTokenKey{}).(string)
	return v
}
