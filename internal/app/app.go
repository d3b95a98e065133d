package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/jonboulle/clockwork"
	_ "github.com/lib/pq"
	"github.com/orgball2608/story-sync-engine/internal/media"
	"github.com/orgball2608/story-sync-engine/internal/media/mediaimpl"
	_ "github.com/orgball2608/story-sync-engine/internal/migrations"
	"github.com/orgball2608/story-sync-engine/internal/notify"
	"github.com/orgball2608/story-sync-engine/internal/refresh"
	"github.com/orgball2608/story-sync-engine/internal/refresh/refreshimpl"
	"github.com/orgball2608/story-sync-engine/internal/repositories/story"
	"github.com/orgball2608/story-sync-engine/internal/status"
	"github.com/orgball2608/story-sync-engine/internal/status/statusimpl"
	"github.com/orgball2608/story-sync-engine/pkg/config"
	"github.com/orgball2608/story-sync-engine/pkg/logger"
	"github.com/pressly/goose/v3"
	"go.uber.org/fx"
)

var Module = fx.Options(
	fx.Provide(
		config.New,
		logger.FxOption,
		notify.NewHub,
		func() clockwork.Clock { return clockwork.NewRealClock() },
	),
	fx.Provide(
		fx.Annotate(
			statusimpl.New,
			fx.As(new(status.Client)),
		), fx.Annotate(
			mediaimpl.New,
			fx.As(new(media.Pipeline)),
		), fx.Annotate(
			refreshimpl.New,
			fx.As(new(refresh.Coordinator)),
		),
	),
	story.Module,
	fx.Invoke(migrate),
	fx.Invoke(run),
)

// migrate applies goose migrations when the repository runs against a
// local postgres; in http mode the remote service owns its own schema.
func migrate(cfg *config.Config, log logger.Logger) error {
	if cfg.Repository.Mode != "postgres" {
		return nil
	}

	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return err
	}
	defer db.Close()

	log.Info("Applying migrations")
	return goose.Up(db, ".")
}

func run(lc fx.Lifecycle, log logger.Logger, cfg *config.Config,
	coordinator refresh.Coordinator, _ media.Pipeline, stClient status.Client) {
	var cancel context.CancelFunc

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())

			if err := coordinator.Start(ctx); err != nil {
				return err
			}
			coordinator.Activate()

			go startHttpServer(log, cfg, stClient)

			log.Info("Story sync engine started",
				"repository_mode", cfg.Repository.Mode,
				"refresh_interval", cfg.Refresh.Interval,
			)
			return nil
		},
		OnStop: func(context.Context) error {
			if cancel != nil {
				cancel()
			}
			return nil
		},
	})
}

func startHttpServer(log logger.Logger, cfg *config.Config, stClient status.Client) {
	http.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		healthCheckHandler(w, r, log)
	})
	http.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		stories := stClient.Snapshot()
		views := 0
		for i := range stories {
			views += stories[i].ViewerCount()
		}
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprintf(w, "stories=%d views=%d saving=%v\n", len(stories), views, stClient.IsSaving())
	})

	log.Info(fmt.Sprintf("Starting server on :%d", cfg.App.Port))

	if err := http.ListenAndServe(fmt.Sprintf(":%d", cfg.App.Port), nil); err != nil {
		log.Error("Server failed to start: %v", err)
	}
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request, logger logger.Logger) {
	logger.Info("Health check request received", "Method", r.Method, "URL", r.URL.String())
	w.Header().Set("Content-Type", "text/plain")
	if _, err := w.Write([]byte("ok")); err != nil {
		logger.Error("Failed to write response", "Error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
