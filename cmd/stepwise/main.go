// Command stepwise executes behavior-driven test scenarios against live
// web pages, asking a language model to turn each step into a browser
// action or a pass/fail judgment.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/stepwise-run/stepwise/internal/config"
	"github.com/stepwise-run/stepwise/internal/oracle"
	"github.com/stepwise-run/stepwise/internal/runner"
	"github.com/stepwise-run/stepwise/internal/secrets"
	"github.com/stepwise-run/stepwise/internal/snapshot"
	"github.com/stepwise-run/stepwise/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "stepwise",
		Short: "AI-driven web scenario runner",
	}
	root.AddCommand(runCmd(), historyCmd())
	return root
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func runCmd() *cobra.Command {
	var (
		configPath string
		url        string
		scriptPath string
		dataPath   string
		dbPath     string
		headed     bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one scenario against a URL",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if dbPath != "" {
				cfg.DatabasePath = dbPath
			}

			script, err := os.ReadFile(scriptPath)
			if err != nil {
				return fmt.Errorf("read script: %w", err)
			}

			sec, err := secrets.NewStoreFromEnvFile(cfg.SecretsEnvFile)
			if err != nil {
				return err
			}

			tokens := runner.NewTokenCounter()
			transport, err := buildTransport(cfg)
			if err != nil {
				return err
			}
			decider := oracle.NewModelOracle(transport, oracle.ModelLists{
				Action:     cfg.Models.Action,
				Verify:     cfg.Models.Verify,
				Synthesize: cfg.Models.Synthesize,
			}, oracle.Options{
				MaxRetries:     cfg.Oracle.MaxRetries,
				InitialBackoff: time.Duration(cfg.Oracle.InitialBackoffMS) * time.Millisecond,
				MaxTokens:      cfg.Oracle.MaxTokens,
				Usage:          tokens,
			})

			snapshots := snapshot.NewProvider(snapshot.Options{
				Budget:       cfg.Snapshot.Budget,
				VerifyBudget: cfg.Snapshot.VerifyBudget,
				Reserve:      cfg.Snapshot.Reserve,
			})

			var recordStore runner.RecordStore
			if cfg.DatabasePath != "" {
				db, err := store.Open(cfg.DatabasePath)
				if err != nil {
					return err
				}
				defer db.Close()
				recordStore = db
			}

			r := runner.New(decider, snapshots, sec, recordStore, tokens, runner.Options{
				MaxVerifyAttempts: cfg.Run.MaxVerifyAttempts,
				VerifyRetryDelay:  time.Duration(cfg.Run.VerifyRetryDelayMS) * time.Millisecond,
				ArtifactDir:       cfg.Run.ArtifactDir,
				VideoDir:          cfg.Run.VideoDir,
				ActionTimeout:     time.Duration(cfg.Run.ActionTimeoutMS) * time.Millisecond,
				PostActionDelay:   time.Duration(cfg.Run.PostActionDelayMS) * time.Millisecond,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rec, err := r.Execute(ctx, runner.Request{
				RunID:        uuid.New().String(),
				URL:          url,
				Headed:       headed,
				Script:       string(script),
				TestDataPath: dataPath,
			})
			if err != nil {
				return err
			}

			fmt.Printf("run %s: %s (%.1fs, %d tokens)\n",
				rec.ID, rec.Status, rec.Duration.Seconds(), rec.TotalTokens)
			if rec.Error != "" {
				fmt.Println(rec.Error)
			}
			if rec.Status != runner.StatusPassed {
				os.Exit(1)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to config YAML")
	cmd.Flags().StringVar(&url, "url", "", "target URL")
	cmd.Flags().StringVar(&scriptPath, "script", "", "path to scenario script")
	cmd.Flags().StringVar(&dataPath, "data", "", "path to CSV test data")
	cmd.Flags().StringVar(&dbPath, "db", "", "sqlite database path (overrides config)")
	cmd.Flags().BoolVar(&headed, "headed", false, "run the browser with a visible window")
	_ = cmd.MarkFlagRequired("url")
	_ = cmd.MarkFlagRequired("script")
	return cmd
}

func buildTransport(cfg config.Config) (oracle.Transport, error) {
	switch cfg.Transport {
	case "", "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai_api_key not configured")
		}
		return oracle.NewOpenAITransport(cfg.OpenAIAPIKey), nil
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("anthropic_api_key not configured")
		}
		return oracle.NewAnthropicTransport(cfg.AnthropicAPIKey), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

func historyCmd() *cobra.Command {
	var (
		configPath string
		dbPath     string
		limit      int
		offset     int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List persisted runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if dbPath != "" {
				cfg.DatabasePath = dbPath
			}

			db, err := store.Open(cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer db.Close()

			records, err := db.List(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}
			for _, rec := range records {
				fmt.Printf("%s  %-7s  %-40s  %.1fs  %s\n",
					rec.ID, rec.Status, rec.URL, rec.Duration.Seconds(), rec.Error)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to config YAML")
	cmd.Flags().StringVar(&dbPath, "db", "", "sqlite database path (overrides config)")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "runs to skip")
	return cmd
}
