package ws

import (
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/DoyleJ11/dungeon-club/internal/hub"
)

// Authenticator resolves a bearer token to an account id.
type Authenticator interface {
	Verify(token string) (accountID string, err error)
}

// Handler upgrades the request and serves the connection. A bearer token on the upgrade
// request binds its account before the first frame is read, so a client that reconnects
// comes back signed in. Without a token the connection starts anonymous.
func Handler(h *hub.Hub, router *Router, sessions Sessions, auth Authenticator, opts Options, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var accountID string
		if raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok && auth != nil {
			id, err := auth.Verify(raw)
			if err != nil {
				log.Info("websocket unauthorized", zap.Error(err), zap.String("remote", r.RemoteAddr))
				http.Error(w, "authentication required", http.StatusUnauthorized)
				return
			}
			accountID = id
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			log.Info("websocket accept failed", zap.Error(err), zap.String("remote", r.RemoteAddr))
			return
		}

		c := NewConn(conn, router, sessions, h, opts, log)
		c.account = accountID
		if !h.Add(r.Context(), c) {
			_ = conn.Close(websocket.StatusTryAgainLater, "server stopping")
			return
		}
		log.Debug("connection opened",
			zap.String("conn", c.ID()),
			zap.String("remote", r.RemoteAddr),
			zap.Bool("authenticated", accountID != ""))

		c.Serve(r.Context())
	}
}
