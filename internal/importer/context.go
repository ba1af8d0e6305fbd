package importer

import "context"

type contextKey string

const ctxKeyRequestMeta contextKey = "import_request_meta"

// RequestMeta identifies who triggered an operation, for the audit trail.
type RequestMeta struct {
	IPAddress string
	UserAgent string
	Actor     string // API key label or CLI user, empty if anonymous
}

// WithRequestMeta attaches request metadata to ctx.
func WithRequestMeta(ctx context.Context, m RequestMeta) context.Context {
	return context.WithValue(ctx, ctxKeyRequestMeta, m)
}

// RequestMetaFrom extracts request metadata, or the zero value.
func RequestMetaFrom(ctx context.Context) RequestMeta {
	if m, ok := ctx.Value(ctxKeyRequestMeta).(RequestMeta); ok {
		return m
	}
	return RequestMeta{}
}
