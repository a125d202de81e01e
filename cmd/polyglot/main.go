package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/seantiz/polyglot/internal/api"
	"github.com/seantiz/polyglot/internal/config"
	"github.com/seantiz/polyglot/internal/engine"
	"github.com/seantiz/polyglot/internal/language"
	plog "github.com/seantiz/polyglot/internal/log"
	"github.com/seantiz/polyglot/internal/repository"
	"github.com/seantiz/polyglot/internal/service"
	"github.com/seantiz/polyglot/internal/store"
	"github.com/seantiz/polyglot/internal/worker"
)

var flagEnvFile string // value of --env-file flag

func main() {
	rootCmd.PersistentFlags().StringVar(&flagEnvFile, "env-file", "", "dotenv file to load before reading the environment (default .env)")

	// never print messages
	rootCmd.SilenceErrors = true

	rootCmd.PersistentPreRunE = func(*cobra.Command, []string) error {
		return config.LoadEnvFile(flagEnvFile)
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(glossaryCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		slog.Error("polyglot failed", "err", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "polyglot",
	Short:        "Translation service running models in an evictable worker process",
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "serve the translation HTTP API",
	RunE:  doServe,
}

var workerCmd = &cobra.Command{
	Use:    worker.ChildCommand,
	Short:  "internal command",
	RunE:   doWorker,
	Hidden: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print version information",
	Run: func(cmd *cobra.Command, args []string) {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			fmt.Println("polyglot: version info not available")
			return
		}

		fmt.Printf("polyglot: %s\n", info.Main.Version)
		fmt.Printf("go:       %s\n", info.GoVersion)
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				fmt.Printf("commit:   %s\n", s.Value)
			case "vcs.time":
				fmt.Printf("date:     %s\n", s.Value)
			case "vcs.modified":
				fmt.Printf("dirty:    %s\n", s.Value)
			}
		}
	},
}

func doServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := config.NewLogger(os.Stdout, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("polyglot: starting",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"model", cfg.ModelName,
		"device", cfg.Device,
		"idle_timeout", cfg.IdleTimeout.String(),
	)

	reg := builtinEngines()
	entry, err := reg.Resolve(cfg.ModelName)
	if err != nil {
		return err
	}

	mapper, err := language.Default()
	if err != nil {
		return fmt.Errorf("load language mappings: %w", err)
	}

	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	factory := engine.NewFactory(reg,
		worker.WithGracePeriod(cfg.GracePeriod),
		worker.WithLogger(logger),
	)
	repo, err := repository.Shared(repository.Options{Config: cfg, Logger: logger},
		func(c config.Config) (repository.Worker, error) {
			w, err := factory.Create(c)
			if err != nil {
				return nil, err
			}
			return w, nil
		})
	if err != nil {
		return err
	}

	svc := service.New(repo, db, mapper, entry.CodeSet, logger)
	srv := api.NewServer(cfg.ListenAddr, db, svc, repo, reg, logger)

	runErr := srv.Run()
	if err := repo.Close(); err != nil {
		logger.Warn("stop worker", "error", err)
	}
	return runErr
}

func doWorker(cmd *cobra.Command, _ []string) error {
	ctx := plog.ContextAttrs(cmd.Context(), slog.Group("polyglot",
		slog.String("cmd", worker.ChildCommand),
		slog.Int("pid", os.Getpid()),
	))

	reg := builtinEngines()
	child := &worker.Child{
		Lookup: reg.Lookup,
		NewLogger: func(cfg worker.Config) *slog.Logger {
			return config.NewLogger(os.Stderr, config.ParseLogLevel(cfg.LogLevel))
		},
	}
	return child.Serve(ctx, os.Stdin, os.Stdout)
}
