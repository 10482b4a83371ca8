package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"soc-website/backend/internal/config"
	"soc-website/backend/internal/db"
	"soc-website/backend/internal/migrate"
	"soc-website/backend/internal/telemetry"
	"soc-website/backend/internal/telemetry/loki"
	telemetryotel "soc-website/backend/internal/telemetry/otel"
	"soc-website/backend/internal/telemetry/producer"
)

// shutdownTimeout bounds the final telemetry flush after the run.
const shutdownTimeout = 10 * time.Second

type flags struct {
	dir     string
	file    string
	timeout time.Duration
	lock    bool
	lockID  int64
}

func newRootCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:   "migrate [file]",
		Short: "Apply one SQL migration script to DATABASE_URL",
		Long: `migrate reads a single SQL file and submits it to the database as one unit.

The file is resolved against MIGRATIONS_DIR (default drizzle/migrations); absolute
paths are used as-is. Without an argument MIGRATION_FILE is applied.

Nothing is recorded about applied scripts, so running the same file twice runs it
twice. Guard re-runs in the SQL itself (CREATE TABLE IF NOT EXISTS and the like).

Exit status: 0 applied, 2 configuration error, 3 script read error,
4 execution error, 1 anything else.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.MaximumNArgs(1)(cmd, args); err != nil {
				return preflight(&migrate.ConfigurationError{Field: "arguments", Reason: "are invalid", Err: err})
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args, f)
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return preflight(&migrate.ConfigurationError{Field: "flags", Reason: "are invalid", Err: err})
	})

	fs := cmd.Flags()
	fs.StringVar(&f.dir, "dir", "", "directory scripts are resolved against (overrides MIGRATIONS_DIR)")
	fs.StringVarP(&f.file, "file", "f", "", "script to apply (overrides MIGRATION_FILE)")
	fs.DurationVar(&f.timeout, "timeout", 0, "execution timeout (overrides MIGRATION_TIMEOUT)")
	fs.BoolVar(&f.lock, "lock", true, "hold a Postgres advisory lock for the run (overrides MIGRATION_LOCK)")
	fs.Int64Var(&f.lockID, "lock-id", 0, "advisory lock key (overrides MIGRATION_LOCK_ID)")
	return cmd
}

func run(cmd *cobra.Command, args []string, f flags) error {
	ctx := cmd.Context()

	cfg, err := config.Load()
	if err != nil {
		return preflight(&migrate.ConfigurationError{Field: "environment", Reason: "is invalid", Err: err})
	}
	applyFlags(cmd, cfg, args, f)
	if err := cfg.Validate(); err != nil {
		return preflight(&migrate.ConfigurationError{Field: "flags", Reason: "are invalid", Err: err})
	}

	providers, err := telemetryotel.NewProviders(ctx, telemetryotel.Options{
		Endpoint:    cfg.OTelEndpoint,
		ServiceName: cfg.OTelServiceName,
		Env:         cfg.Env,
		Insecure:    cfg.OTelInsecure,
	})
	if err != nil {
		return preflight(&migrate.ConfigurationError{Field: "OTEL_EXPORTER_OTLP_ENDPOINT", Reason: "is invalid", Err: err})
	}
	providers.SetGlobal()
	defer func() {
		// The run context may already be cancelled by a signal; the flush still needs its own deadline.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			log.Printf("migrate: telemetry shutdown: %v", err)
		}
	}()

	emitters := []telemetry.EventEmitter{telemetryotel.NewEventEmitter(providers.LoggerProvider)}
	if cfg.LokiURL != "" {
		emitters = append(emitters, loki.NewEmitter(cfg.LokiURL, &http.Client{Timeout: 5 * time.Second}))
	}
	if kp := producer.NewKafkaProducer(cfg.TelemetryKafkaBrokersList(), cfg.TelemetryKafkaTopic); kp != nil {
		defer func() {
			if err := kp.Close(); err != nil {
				log.Printf("migrate: kafka close: %v", err)
			}
		}()
		emitters = append(emitters, kp)
	}

	var dbOpts []db.Option
	if cfg.MigrationLock {
		dbOpts = append(dbOpts, db.WithAdvisoryLock(cfg.MigrationLockID))
	}
	runner := migrate.New(db.NewProvider(dbOpts...), migrate.OSScripts(cfg.MigrationsDir),
		migrate.WithEmitter(telemetry.Fanout(emitters...)),
		migrate.WithEnv(cfg.Env),
		migrate.WithSource(cfg.OTelServiceName),
	)
	_, err = runner.Run(ctx, migrate.Request{
		DatabaseURL: cfg.DatabaseURL,
		Script:      cfg.MigrationFile,
		Timeout:     cfg.ExecTimeout(),
	})
	return err
}

// applyFlags overlays explicitly set flags and the positional file onto cfg.
func applyFlags(cmd *cobra.Command, cfg *config.Config, args []string, f flags) {
	fs := cmd.Flags()
	if fs.Changed("dir") {
		cfg.MigrationsDir = f.dir
	}
	if fs.Changed("file") {
		cfg.MigrationFile = f.file
	}
	if len(args) == 1 {
		cfg.MigrationFile = args[0]
	}
	if fs.Changed("timeout") {
		cfg.MigrationTimeout = f.timeout.String()
	}
	if fs.Changed("lock") {
		cfg.MigrationLock = f.lock
	}
	if fs.Changed("lock-id") {
		cfg.MigrationLockID = f.lockID
	}
}

// preflight logs an error raised before the runner took over; the runner logs its own outcome.
func preflight(err error) error {
	log.Printf("migrate: %v", err)
	return err
}
