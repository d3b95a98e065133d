package story

import (
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/orgball2608/story-sync-engine/pkg/config"
	"github.com/orgball2608/story-sync-engine/pkg/logger"
	pkgpgx "github.com/orgball2608/story-sync-engine/pkg/pgx"
	"go.uber.org/fx"
)

type Opts struct {
	fx.In

	LC     fx.Lifecycle
	Config *config.Config
	Logger logger.Logger
	Clock  clockwork.Clock
}

// NewRepository selects the repository implementation from config.
func NewRepository(opts Opts) (Repository, error) {
	switch opts.Config.Repository.Mode {
	case "postgres":
		pool, err := pkgpgx.New(opts.LC, opts.Logger, opts.Config)
		if err != nil {
			return nil, err
		}
		return NewPgx(pool, opts.Clock), nil
	case "http":
		return NewHTTP(opts.Config.Repository.BaseURL, opts.Config.Repository.Timeout, opts.Logger), nil
	default:
		return nil, fmt.Errorf("unknown repository mode %q", opts.Config.Repository.Mode)
	}
}

var Module = fx.Provide(NewRepository)
