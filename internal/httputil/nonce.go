package httputil

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
)

type contextKey string

const nonceKey contextKey = "csp-nonce"

const nonceBytes = 16

// RandomToken returns n bytes from crypto/rand, base64url-encoded without
// padding.
func RandomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// GenerateNonce returns a fresh CSP nonce for one page render. It returns ""
// when the system RNG fails, which leaves inline scripts blocked.
func GenerateNonce() string {
	nonce, err := RandomToken(nonceBytes)
	if err != nil {
		slog.Error("failed to generate CSP nonce", "error", err)
		return ""
	}
	return nonce
}

func ContextWithNonce(ctx context.Context, nonce string) context.Context {
	return context.WithValue(ctx, nonceKey, nonce)
}

func NonceFromContext(ctx context.Context) string {
	nonce, _ := ctx.Value(nonceKey).(string)
	return nonce
}
