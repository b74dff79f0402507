package httpapi

import (
	"net/http"
	"time"

	"github.com/DoyleJ11/tabletop-server/internal/hub"
	"github.com/DoyleJ11/tabletop-server/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

func SetupRoutes(h *hub.Hub, coord *ws.Coordinator, log *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))

	r.Get("/healthz", Healthz)
	r.Get("/games", ListGames(h))

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", StartSession(h))
		r.Get("/", ListSessions(h))
		r.Get("/history", SessionHistory(h))

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", GetSession(h))
			r.Delete("/", TerminateSession(h))
			r.Post("/players", JoinSession(h))
			r.Get("/state", SessionState(h))
			r.Get("/errors", ScriptErrors(h))
		})
	})

	r.Get("/ws", coord.ServeHTTP)
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
