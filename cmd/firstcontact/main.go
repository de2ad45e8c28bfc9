package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"firstcontact/internal/api"
	"firstcontact/internal/browser"
	"firstcontact/internal/config"
	"firstcontact/internal/contacts"
	"firstcontact/internal/logging"
	"firstcontact/internal/messenger"
	"firstcontact/internal/pacing"
)

// app carries what every subcommand needs once PersistentPreRunE has run.
type app struct {
	configPath string
	cfg        *config.Config
	log        *zap.Logger
	flush      func()
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "firstcontact",
		Short:         "Sends first-contact messages through a logged-in web messenger session",
		Version:       api.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.flush != nil {
				a.flush()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}
	root.SetVersionTemplate("{{printf \"%s\\n\" .Version}}")
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to a yaml config file")

	root.AddCommand(newServeCmd(a), newRunCmd(a), newVersionCmd())
	return root
}

func (a *app) init() error {
	// A missing .env is fine; the environment and defaults still apply.
	_ = godotenv.Load()

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log, flush, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.cfg, a.log, a.flush = cfg, log, flush
	return nil
}

// buildService wires the browser, pacing and optional ledger into a messenger.
// The returned session must be closed by the caller.
func (a *app) buildService() (*messenger.Service, *browser.Session, error) {
	cfg := a.cfg

	session := browser.NewSession(browser.Options{
		ExecPath:       cfg.Browser.ChromePath,
		UserDataDir:    cfg.Browser.UserDataDir,
		UserAgent:      cfg.Browser.UserAgent,
		Headless:       cfg.Browser.Headless,
		ViewportWidth:  cfg.Browser.ViewportWidth,
		ViewportHeight: cfg.Browser.ViewportHeight,
	}, a.log)

	var options []messenger.Option
	if cfg.RateLimiting.Enabled {
		options = append(options, messenger.WithLimiter(pacing.NewLimiter(cfg.RateLimiting.MessagesPerMinute)))
		a.log.Info("Rate limiting enabled", zap.Int("messages_per_minute", cfg.RateLimiting.MessagesPerMinute))
	}
	if cfg.Files.CompletedCSVPath != "" {
		ledger, err := contacts.OpenLedger(cfg.Files.CompletedCSVPath, a.log)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open completed ledger: %w", err)
		}
		options = append(options, messenger.WithLedger(ledger))
	}

	delays := pacing.Range{Min: cfg.Session.DelayMin(), Max: cfg.Session.DelayMax()}
	svc := messenger.New(messenger.OptionsFromConfig(cfg), session, delays, a.log, options...)
	return svc, session, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		// Printing the version needs neither config nor logger.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), api.Version)
		},
	}
}
