package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/curricula/config"
	"github.com/mohammad-safakhou/curricula/internal/llm"
	"github.com/mohammad-safakhou/curricula/internal/research"
	srv "github.com/mohammad-safakhou/curricula/internal/server"
	"github.com/mohammad-safakhou/curricula/internal/stream"
)

const researchSystem = "You are a thorough research analyst. Research the topic completely and write a well-structured markdown report with your findings."

func main() {
	_ = godotenv.Load()

	var cfgPath string
	root := &cobra.Command{Use: "curricula"}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (defaults to ./config/config.json)")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			return srv.Run(cfg)
		},
	}

	var migDir string
	var direction string
	var steps int
	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn := os.Getenv("DATABASE_URL")
			if dsn == "" {
				cfg, err := config.LoadConfig(cfgPath)
				if err != nil {
					return err
				}
				dsn = cfg.Storage.Postgres.DSN()
			}
			return srv.Migrate(migDir, dsn, direction, steps)
		},
	}
	migrate.Flags().StringVar(&migDir, "dir", "file://migrations", "migrations source")
	migrate.Flags().StringVar(&direction, "direction", "up", "up or down")
	migrate.Flags().IntVar(&steps, "steps", 0, "number of steps (0 = all)")

	var depth string
	researchCmd := &cobra.Command{
		Use:   "research [topic]",
		Short: "Run one deep-research call and print the report to stdout",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			router, err := llm.NewRouter(cfg.LLM)
			if err != nil {
				return err
			}
			if depth == "" {
				depth = cfg.Research.Depth
			}
			topic := strings.Join(args, " ")
			deep := research.NewDeepResearcher(router, nil)
			res, err := deep.Adaptive(cmd.Context(), depth, researchSystem, topic, consoleEmitter{})
			if err != nil {
				return err
			}
			fmt.Println()
			fmt.Fprintf(os.Stderr, "done: %d searches, %d output tokens\n", res.Searches, res.OutputTokens)
			return nil
		},
	}
	researchCmd.Flags().StringVar(&depth, "depth", "", "quick, standard, comprehensive or exhaustive")

	root.AddCommand(serve, migrate, researchCmd)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// consoleEmitter prints progress to stderr and findings to stdout, so a
// redirected run leaves a clean markdown report.
type consoleEmitter struct{}

func (consoleEmitter) Publish(_ context.Context, ev stream.Event) {
	switch ev.Kind {
	case stream.KindStatus:
		fmt.Fprintf(os.Stderr, "-- %s\n", ev.Content)
	case stream.KindSearch:
		fmt.Fprintf(os.Stderr, "   search #%d\n", ev.Number)
	case stream.KindText:
		fmt.Print(ev.Content)
	case stream.KindError:
		fmt.Fprintf(os.Stderr, "error: %s\n", ev.Message)
	}
}
