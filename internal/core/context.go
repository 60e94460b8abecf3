package core

import "context"

type requestMetaKey struct{}

// RequestMeta identifies the caller of an operation for audit logging.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

// WithRequestMeta attaches caller details to ctx.
func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

// RequestMetaFrom returns the caller details in ctx, or the zero value.
func RequestMetaFrom(ctx context.Context) RequestMeta {
	if v, ok := ctx.Value(requestMetaKey{}).(RequestMeta); ok {
		return v
	}
	return RequestMeta{}
}
