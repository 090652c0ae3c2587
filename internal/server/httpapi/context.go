// Package httpapi exposes the server's HTTP surface: the health and auth
// endpoints, the /sync API, and the /storage S3 gateway.
package httpapi

import "context"

type ctxKey string

const userIDKey ctxKey = "userID"

// withUserID stores the authenticated subject on the request context.
func withUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// userIDFrom returns the authenticated subject, or "" when the request
// never passed authentication.
func userIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}
