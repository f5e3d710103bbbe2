package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/fjod/cartsync/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type RouterConfig struct {
	RequestTimeout time.Duration
}

func NewRouter(cartHandler *CartHandler, verifier TokenVerifier, cfg RouterConfig, log *slog.Logger) http.Handler {
	log = logger.OrDefault(log)

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(RequestLogger(log))
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}
	r.Use(AuthMiddleware(verifier, log))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		cartHandler.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartHandler.GetCart)
			r.Put("/", cartHandler.SyncCart)
		})
		r.Get("/products/{id}", cartHandler.GetProduct)
	})

	return otelhttp.NewHandler(r, "cart-api")
}
