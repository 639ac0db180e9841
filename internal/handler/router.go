package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/supportbot/internal/handler/echo"
	"github.com/zhouzirui/supportbot/internal/handler/widget"
	middlewarePkg "github.com/zhouzirui/supportbot/internal/middleware"
	"github.com/zhouzirui/supportbot/internal/render"
	"github.com/zhouzirui/supportbot/internal/service/resolver"
	widgetService "github.com/zhouzirui/supportbot/internal/service/widget"
	"github.com/zhouzirui/supportbot/pkg/utils"
)

// Options selects optional routes.
type Options struct {
	// Echo mounts POST /api/echo answering with Provider, or the stock
	// knowledge base when Provider is nil.
	Echo     bool
	Provider resolver.ResponseProvider
}

// NewRouter wires HTTP routes to core services.
func NewRouter(registry *widgetService.Registry, events *render.Broadcaster, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status":  "ok",
			"widgets": len(registry.List()),
		})
	})

	r.Route("/api", func(api chi.Router) {
		widget.New(registry, events).RegisterRoutes(api)

		if opts.Echo {
			echo.New(opts.Provider).RegisterRoutes(api)
		}
	})

	return r
}
