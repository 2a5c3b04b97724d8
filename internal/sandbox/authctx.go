package sandbox

import (
	"context"
)

type ctxKey string

const accountKey ctxKey = "medalert.account"

// WithAccount stores the authenticated account in context.
func WithAccount(ctx context.Context, a Account) context.Context {
	return context.WithValue(ctx, accountKey, a)
}

// AccountFromCtx fetches the authenticated account from context.
func AccountFromCtx(ctx context.Context) (Account, bool) {
	a, ok := ctx.Value(accountKey).(Account)
	return a, ok
}
