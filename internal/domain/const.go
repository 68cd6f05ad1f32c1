package domain

import "context"

type ContextKey string

const (
	RequesterIdCtxKey ContextKey = "tl-requesterId"
)

const (
	// RequesterIdHeader carries the entity id of the caller, set by the
	// authenticating proxy in front of this service.
	RequesterIdHeader = "trust-requester-id"
)

// RequesterID returns the authenticated entity id stored on ctx, if any.
func RequesterID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(RequesterIdCtxKey).(string)
	return id, ok && id != ""
}
