package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	cataloghandler "github.com/zhouzirui/robot-face/backend/internal/handler/catalog"
	facehandler "github.com/zhouzirui/robot-face/backend/internal/handler/face"
	"github.com/zhouzirui/robot-face/backend/internal/handler/stream"
	"github.com/zhouzirui/robot-face/backend/internal/handler/ws"
	middlewarePkg "github.com/zhouzirui/robot-face/backend/internal/middleware"
	"github.com/zhouzirui/robot-face/backend/internal/model/catalog"
	faceservice "github.com/zhouzirui/robot-face/backend/internal/service/face"
	"github.com/zhouzirui/robot-face/backend/internal/service/typewriter"
	"github.com/zhouzirui/robot-face/backend/pkg/utils"
)

// NewRouter wires HTTP routes to the orchestrator.
func NewRouter(face *faceservice.Orchestrator, models *catalog.Catalog) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
			"state":  string(face.Snapshot().State),
		})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(api chi.Router) {
		facehandler.New(face).RegisterRoutes(api)
		cataloghandler.New(models, face).RegisterRoutes(api)
		stream.New(face, typewriter.DefaultInterval).RegisterRoutes(api)
		ws.New(face, models).RegisterRoutes(api)
	})

	return r
}
