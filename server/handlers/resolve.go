package handlers

import (
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ebogdum/sharefs/core"
	"github.com/ebogdum/sharefs/shares"
)

// V1ResolveShareHandler serves the anonymous share resolution endpoint. A
// password, when the token requires one, is supplied in the X-Share-Password
// header. On success the caller is redirected to a presigned blob URL.
//
// Every failure produces the same response; which check failed is visible
// only in logs and metrics.
func V1ResolveShareHandler(engine *core.Engine, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		token := chi.URLParam(r, "token")
		if token == "" {
			SendShareDenial(w, logger)
			return
		}

		password := r.Header.Get("X-Share-Password")
		remoteIP := clientIP(r)

		url, fr, err := engine.ResolveShare(ctx, token, password, remoteIP)
		if err != nil {
			logger.Warn("Anonymous share access denied",
				zap.String("token", shares.TruncateToken(token)),
				zap.String("remote_ip", remoteIP),
				zap.Error(err))
			SendShareDenial(w, logger)
			return
		}

		logger.Info("Anonymous share access granted",
			zap.String("token", shares.TruncateToken(token)),
			zap.String("file_id", fr.FileID),
			zap.String("remote_ip", remoteIP))

		http.Redirect(w, r, url, http.StatusFound)
	}
}

// clientIP extracts the real client IP, preferring proxy headers.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.IndexByte(xff, ','); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return ip
	}

	return r.RemoteAddr
}
