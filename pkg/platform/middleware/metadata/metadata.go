package metadata

import (
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"titulaciones/pkg/requestcontext"
)

// ClientMetadata extracts client IP, User-Agent and a short wallet platform
// summary and stores them in the request context. Apply early in the chain.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua := r.Header.Get("User-Agent")
		ctx := requestcontext.WithClientMetadata(r.Context(), ClientIPFromRequest(r), ua, WalletPlatform(ua))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// WalletPlatform reduces a User-Agent to "<client>/<os>" for audit records.
// Native wallets often send bare identifiers; those are returned unchanged.
func WalletPlatform(raw string) string {
	if raw == "" {
		return ""
	}
	ua := useragent.New(raw)
	name, _ := ua.Browser()
	osName := ua.OSInfo().Name
	switch {
	case ua.Bot():
		return "bot"
	case name == "" && osName == "":
		return raw
	case osName == "":
		return name
	case name == "":
		return osName
	}
	return name + "/" + osName
}

// ClientIPFromRequest extracts the real client IP, honoring proxy headers.
func ClientIPFromRequest(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// X-Forwarded-For: client, proxy1, proxy2
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	if addr := r.RemoteAddr; addr != "" {
		if idx := strings.LastIndex(addr, ":"); idx != -1 {
			return addr[:idx]
		}
		return addr
	}

	return "unknown"
}
