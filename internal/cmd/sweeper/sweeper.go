// Package sweeper parses sweeper command flags and runs the periodic
// reliability scoring loop.
package sweeper

import (
	"context"
	"errors"
	"flag"
	"log"
	"time"

	entrypoint "github.com/vitalyst/provenance/internal/platform/cmd"
	"github.com/vitalyst/provenance/internal/reliability"
	"github.com/vitalyst/provenance/internal/storage/sqlite"
	"github.com/vitalyst/provenance/internal/telemetry"
)

// Config holds sweeper command configuration.
type Config struct {
	DBPath        string        `env:"VITALYST_SWEEPER_DB_PATH" envDefault:"data/provenance.db"`
	SweepInterval time.Duration `env:"VITALYST_SWEEPER_INTERVAL" envDefault:"15m"`
	// Once runs a single sweep and exits instead of looping.
	Once bool `env:"VITALYST_SWEEPER_ONCE"`

	AccuracyHalfLife  time.Duration `env:"VITALYST_SWEEPER_ACCURACY_HALF_LIFE"`
	FreshnessHalfLife time.Duration `env:"VITALYST_SWEEPER_FRESHNESS_HALF_LIFE"`
	Tolerance         float64       `env:"VITALYST_SWEEPER_TOLERANCE"`
}

// scorerConfig overlays command configuration on the scoring defaults.
func (cfg Config) scorerConfig() reliability.Config {
	scoring := reliability.DefaultConfig()
	if cfg.AccuracyHalfLife > 0 {
		scoring.AccuracyHalfLife = cfg.AccuracyHalfLife
	}
	if cfg.FreshnessHalfLife > 0 {
		scoring.FreshnessHalfLife = cfg.FreshnessHalfLife
	}
	if cfg.Tolerance > 0 {
		scoring.Tolerance = cfg.Tolerance
	}
	return scoring
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The provenance SQLite database path")
	fs.DurationVar(&cfg.SweepInterval, "interval", cfg.SweepInterval, "Delay between reliability sweeps")
	fs.BoolVar(&cfg.Once, "once", cfg.Once, "Run a single sweep and exit")
	fs.DurationVar(&cfg.AccuracyHalfLife, "accuracy-half-life", cfg.AccuracyHalfLife, "Half-life for recency-weighted accuracy (0 uses the default)")
	fs.DurationVar(&cfg.FreshnessHalfLife, "freshness-half-life", cfg.FreshnessHalfLife, "Half-life for source freshness decay (0 uses the default)")
	fs.Float64Var(&cfg.Tolerance, "tolerance", cfg.Tolerance, "Relative tolerance used to grade cross-reference closeness (0 uses the default)")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the sweeper runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceSweeper, func(ctx context.Context) error {
		store, err := sqlite.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer func() {
			if err := store.Close(); err != nil {
				log.Printf("close store: %v", err)
			}
		}()

		emitter := telemetry.NewEmitter(store, telemetry.LogNotifier{})
		scorer := reliability.NewService(store, emitter, cfg.scorerConfig())
		return sweep(ctx, scorer, cfg)
	})
}

// scoreSweeper recomputes reliability snapshots across all sources.
type scoreSweeper interface {
	Sweep(ctx context.Context) (int, error)
}

func sweep(ctx context.Context, scorer scoreSweeper, cfg Config) error {
	interval := cfg.SweepInterval
	if interval <= 0 {
		interval = 15 * time.Minute
	}

	for {
		swept, err := scorer.Sweep(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			log.Printf("reliability sweep: scored %d sources before error: %v", swept, err)
		} else {
			log.Printf("reliability sweep: scored %d sources", swept)
		}
		if cfg.Once {
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}
