package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"github.com/zhouzirui/robot-face/backend/internal/config"
	"github.com/zhouzirui/robot-face/backend/internal/handler"
	"github.com/zhouzirui/robot-face/backend/internal/logger"
	"github.com/zhouzirui/robot-face/backend/internal/model/catalog"
	"github.com/zhouzirui/robot-face/backend/internal/model/persona"
	"github.com/zhouzirui/robot-face/backend/internal/service/ai"
	"github.com/zhouzirui/robot-face/backend/internal/service/chat"
	"github.com/zhouzirui/robot-face/backend/internal/service/face"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load configuration", "err", err)
	}

	logger.Configure(cfg.Server.LogLevel, nil)
	if envErr != nil {
		log.Debug("no .env file, using system environment only", "err", envErr)
	}

	personaStore := persona.NewMemoryStore(persona.Seed())
	character, ok := personaStore.FindByID(cfg.Face.PersonaID)
	if !ok {
		character = personaStore.List()[0]
		log.Warn("unknown persona, using default", "persona", cfg.Face.PersonaID, "fallback", character.ID)
	}

	models, err := loadCatalog(cfg.Face.CatalogPath)
	if err != nil {
		log.Fatal("failed to load model catalog", "path", cfg.Face.CatalogPath, "err", err)
	}

	initial := models.First()
	if cfg.Face.ModelID != "" {
		initial, err = models.Resolve(cfg.Face.ModelID)
		if err != nil {
			log.Fatal("MODEL_ID is not in the catalog", "model", cfg.Face.ModelID)
		}
	}

	loader := ai.NewLoader(cfg.AI, character)
	orchestrator := face.NewOrchestrator(character, chat.NewWindow(chat.DefaultWindowSize), face.LoaderFactory(loader))

	scheduler := face.NewScheduler(orchestrator, character.IdleThoughts)
	detach := scheduler.Attach(orchestrator)
	scheduler.Start()
	defer func() {
		detach()
		scheduler.Stop()
	}()

	if cfg.Face.AutoLoad {
		if !cfg.AI.Enabled() {
			log.Warn("AI backend credentials missing, model load will fail", "backend", cfg.AI.Backend)
		}
		go func() {
			if err := orchestrator.SelectModel(ctx, initial.ID); err != nil && !errors.Is(err, face.ErrStale) {
				log.Warn("initial model load failed", "model", initial.ID, "err", err)
			}
		}()
	} else {
		log.Info("auto load disabled, waiting for PUT /api/models/current")
	}

	router := handler.NewRouter(orchestrator, models)

	startServer(ctx, cfg.Server, router)
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.New(catalog.Seed()), nil
	}
	return catalog.Load(path)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info("robot face backend listening", "addr", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatal("server error", "err", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
