package sessionkit

import (
	"context"

	"github.com/halcyonlabs/sessionkit/recovery"
)

// WithLocale attaches the caller's BCP 47 language tag to ctx. The recovery
// orchestrator uses it to localize user-facing messages; unknown or absent
// locales fall back to English.
//
//	Docs: docs/recovery.md
func WithLocale(ctx context.Context, locale string) context.Context {
	return recovery.WithLocale(ctx, locale)
}
