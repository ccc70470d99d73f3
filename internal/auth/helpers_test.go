package auth_test

import (
	"io"
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/stocklane/stocklane/internal/auth"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRouter(handler *auth.Handler) chi.Router {
	r := chi.NewRouter()
	r.Route("/api/v1/auth", handler.MountRoutes)
	return r
}
