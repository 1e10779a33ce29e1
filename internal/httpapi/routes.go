package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/dungeon-club/internal/server"
)

func SetupRoutes(s *server.Server, log *zap.Logger) http.Handler {
	log = log.Named("http")
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer, requestLogger(log))

	// Public routes
	r.Get("/healthz", Healthz)
	r.Get("/websocket", s.WebsocketHandler())

	r.Route("/api/v1/campaigns/{campaignId}", func(r chi.Router) {
		r.Use(authorizedEndpoint(s, log))
		r.Post("/boards", CreateBoard(s, log))
		r.Get("/boards/{boardId}", GetBoard(s, log))
		r.Get("/assets/{assetId}", GetAsset(s, log))
	})
	return r
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
