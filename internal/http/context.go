package http

import "context"

type ctxKey int

const (
	cartIDKey ctxKey = iota
	sessionIDKey
	customerTokenKey
	staffKey
)

type staff struct {
	Token string
	Actor string
}

func withCartID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, cartIDKey, id)
}

func cartIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(cartIDKey).(string)
	return id
}

func withSessionID(ctx context.Context, sid string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sid)
}

func sessionIDFrom(ctx context.Context) string {
	sid, _ := ctx.Value(sessionIDKey).(string)
	return sid
}

func withCustomerToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, customerTokenKey, token)
}

// customerTokenFrom is empty for guests.
func customerTokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(customerTokenKey).(string)
	return token
}

func withStaff(ctx context.Context, s staff) context.Context {
	return context.WithValue(ctx, staffKey, s)
}

func staffFrom(ctx context.Context) (staff, bool) {
	s, ok := ctx.Value(staffKey).(staff)
	return s, ok
}
