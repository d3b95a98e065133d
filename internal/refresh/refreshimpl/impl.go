package refreshimpl

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/orgball2608/story-sync-engine/internal/notify"
	"github.com/orgball2608/story-sync-engine/internal/refresh"
	"github.com/orgball2608/story-sync-engine/internal/status"
	"github.com/orgball2608/story-sync-engine/pkg/config"
	"github.com/orgball2608/story-sync-engine/pkg/logger"
	"go.uber.org/fx"
	"golang.org/x/time/rate"
)

type Opts struct {
	fx.In

	Status status.Client
	Hub    *notify.Hub
	Logger logger.Logger
	Config *config.Config
}

type RefreshImpl struct {
	Status status.Client
	Hub    *notify.Hub
	Logger logger.Logger

	interval   time.Duration
	limiter    *rate.Limiter
	requests   chan struct{}
	foreground atomic.Bool
}

func New(opts Opts) *RefreshImpl {
	minGap := opts.Config.Refresh.MinGap
	if minGap <= 0 {
		minGap = time.Second
	}
	return &RefreshImpl{
		Status:   opts.Status,
		Hub:      opts.Hub,
		Logger:   opts.Logger,
		interval: opts.Config.Refresh.Interval,
		limiter:  rate.NewLimiter(rate.Every(minGap), 1),
		requests: make(chan struct{}, 1),
	}
}

var _ refresh.Coordinator = (*RefreshImpl)(nil)

// Request coalesces: while a reload is pending or in flight, further
// requests fold into the one buffered slot.
func (r *RefreshImpl) Request() {
	select {
	case r.requests <- struct{}{}:
	default:
	}
}

func (r *RefreshImpl) Activate() {
	r.foreground.Store(true)
	r.Request()
}

func (r *RefreshImpl) Deactivate() {
	r.foreground.Store(false)
}

// Start launches the consumer loop and the periodic tick. Both stop when
// ctx is cancelled.
func (r *RefreshImpl) Start(ctx context.Context) error {
	sub := r.Hub.Subscribe()

	go func() {
		defer r.Hub.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case <-sub:
				r.Request()
			case <-r.requests:
				if err := r.limiter.Wait(ctx); err != nil {
					return
				}
				r.Status.Reload(ctx)
			}
		}
	}()

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create refresh scheduler: %w", err)
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(r.interval),
		gocron.NewTask(func() {
			if ctx.Err() != nil {
				return
			}
			if !r.foreground.Load() {
				r.Logger.Debug("Skipping periodic refresh while backgrounded")
				return
			}
			r.Request()
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule periodic refresh: %w", err)
	}

	scheduler.Start()

	go func() {
		<-ctx.Done()
		r.Logger.Info("Stopping refresh scheduler")
		if err := scheduler.Shutdown(); err != nil {
			r.Logger.Error("Failed to shut down refresh scheduler", "error", err)
		}
	}()

	return nil
}
