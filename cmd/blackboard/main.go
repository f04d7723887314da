package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tessera-ai/blackboard/internal/config"
	"github.com/tessera-ai/blackboard/internal/domain"
	"github.com/tessera-ai/blackboard/internal/service"
	"github.com/tessera-ai/blackboard/internal/store"
	"github.com/tessera-ai/blackboard/internal/wal"
)

var (
	walBackend string
	walPath    string
	limitFlag  int
	policyFlag string
)

var rootCmd = &cobra.Command{
	Use:   "blackboard",
	Short: "Shared memory substrate for multi-agent systems",
	Long: `blackboard is a shared memory substrate for cooperating agents:
an append-only event timeline with artifacts and embedding recall,
claim conflict detection with salience-based resolution, and
evidence-weighted belief fusion with confidence decay.`,
	SilenceUsage: true,
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Replay the durable log and print the event timeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()
		defer func() { _ = logger.Sync() }()

		ctx := cmd.Context()
		bb, cleanup, err := openBlackboard(ctx, logger)
		if err != nil {
			return err
		}
		defer cleanup()

		events := bb.QueryEvents(ctx, limitFlag)
		for _, ev := range events {
			fmt.Printf("%s  %-12s  %-12s  %s\n",
				ev.Provenance.Timestamp.Format(time.RFC3339),
				ev.EventType, ev.Provenance.AgentID, ev.Text)
		}
		fmt.Printf("%d events\n", len(events))
		return nil
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <key>",
	Short: "Recover claims from the log and resolve one key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()
		defer func() { _ = logger.Sync() }()

		if !domain.ValidResolutionPolicy(policyFlag) {
			return fmt.Errorf("unknown policy %q", policyFlag)
		}
		policy := domain.ResolutionPolicy(policyFlag)

		ctx := cmd.Context()
		bb, cleanup, err := openBlackboard(ctx, logger)
		if err != nil {
			return err
		}
		defer cleanup()

		conflicts := service.NewConflictService(bb, service.TrustMap{}, domain.SystemClock(), logger)
		recovered := conflicts.RecoverClaims(ctx)
		logger.Info("claims recovered", zap.Int("count", recovered))

		res := conflicts.Resolve(args[0], policy)
		for _, rc := range res.Ranked {
			fmt.Printf("%.4f  %-12s  conf=%.2f  %v\n",
				rc.Score, rc.Claim.Provenance.AgentID, rc.Claim.Confidence, rc.Claim.Value)
		}
		for _, c := range res.Conflicts {
			fmt.Printf("conflict %s: %s\n", c.ConflictID, c.Reason)
		}
		if res.Chosen != nil {
			fmt.Printf("chosen: %v (claim %s, policy %s)\n", res.Chosen.Value, res.Chosen.ClaimID, res.Policy)
		} else {
			fmt.Printf("no winner (policy %s)\n", res.Policy)
		}
		return nil
	},
}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a small three-agent scenario against a fresh board",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()
		defer func() { _ = logger.Sync() }()
		return runDemo(cmd.Context(), logger)
	},
}

func newLogger() *zap.Logger {
	cfg := zap.NewProductionConfig()
	if lvl, err := zap.ParseAtomicLevel(config.LogLevel()); err == nil {
		cfg.Level = lvl
	}
	logger, err := cfg.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	return logger
}

func openBlackboard(ctx context.Context, logger *zap.Logger) (*store.Blackboard, func(), error) {
	backend := walBackend
	if backend == "" {
		backend = config.WALBackend()
	}
	path := walPath
	if path == "" {
		path = config.WALPath()
	}

	var (
		log wal.Log
		err error
	)
	switch backend {
	case "file":
		log, err = wal.OpenFileLog(path, logger)
	case "sqlite":
		log, err = wal.OpenSQLiteLog(path, logger)
	case "postgres":
		url := config.DatabaseURL()
		if url == "" {
			return nil, nil, fmt.Errorf("DATABASE_URL is required for the postgres backend")
		}
		log, err = wal.OpenPostgresLog(ctx, url, logger)
	case "none":
		log = nil
	default:
		return nil, nil, fmt.Errorf("unknown WAL backend %q", backend)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open %s log: %w", backend, err)
	}

	bb, err := store.New(ctx, log, domain.SystemClock(), logger)
	if err != nil {
		if log != nil {
			_ = log.Close()
		}
		return nil, nil, err
	}
	cleanup := func() {
		if log != nil {
			_ = log.Close()
		}
	}
	return bb, cleanup, nil
}

func main() {
	if err := config.Load(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	rootCmd.PersistentFlags().StringVar(&walBackend, "wal", "", "durability backend: file, sqlite, postgres, none")
	rootCmd.PersistentFlags().StringVar(&walPath, "wal-path", "", "log path for file and sqlite backends")
	eventsCmd.Flags().IntVar(&limitFlag, "limit", 0, "print only the newest N events")
	resolveCmd.Flags().StringVar(&policyFlag, "policy", string(domain.PolicyBestSalience), "resolution policy")

	rootCmd.AddCommand(eventsCmd, resolveCmd, demoCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
