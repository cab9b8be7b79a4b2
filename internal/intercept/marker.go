package intercept

import "context"

type ctxKey int

const exchangeIDKey ctxKey = iota

// withMarker tags ctx as belonging to a request already re-issued by the
// interceptor. The tag never leaves the process.
func withMarker(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, exchangeIDKey, id)
}

// ExchangeID returns the id of the exchange ctx was re-issued under.
func ExchangeID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(exchangeIDKey).(string)
	return id, ok && id != ""
}

// StripMarker returns a context that is no longer tagged as re-issued. Use it
// when dispatching a new request derived from an intercepted one, such as a
// manual redirect, so the new request is recorded too.
func StripMarker(ctx context.Context) context.Context {
	if _, ok := ExchangeID(ctx); !ok {
		return ctx
	}
	return context.WithValue(ctx, exchangeIDKey, "")
}
