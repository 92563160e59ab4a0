package logging

import (
	"context"

	"go.viam.com/utils"
)

type debugCtxKey struct{}

// EnableDebugMode marks ctx so that CDebug* calls made with it are written even when the logger is
// above DEBUG. The key tags those entries; an empty key is replaced by a random one.
func EnableDebugMode(ctx context.Context, key string) context.Context {
	if key == "" {
		key = utils.RandomAlphaString(6)
	}
	return context.WithValue(ctx, debugCtxKey{}, key)
}

// IsDebugMode reports whether ctx was marked by EnableDebugMode.
func IsDebugMode(ctx context.Context) bool {
	return debugKey(ctx) != ""
}

func debugKey(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	key, _ := ctx.Value(debugCtxKey{}).(string)
	return key
}
