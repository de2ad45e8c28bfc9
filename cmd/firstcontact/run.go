package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"firstcontact/internal/contacts"
)

type runOptions struct {
	recipientsPath string
	templatePath   string
	dryRun         bool
}

var errSendsFailed = errors.New("one or more messages failed")

func newRunCmd(a *app) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Send one bulk session from a recipients CSV and a template file",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.run(ctx, opts)
		},
	}
	cmd.Flags().StringVar(&opts.recipientsPath, "recipients", "recipients.csv", "CSV file with a username column")
	cmd.Flags().StringVar(&opts.templatePath, "template", "message.tmpl", "message template file")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "render every message without opening a browser")
	return cmd
}

func (a *app) run(ctx context.Context, opts *runOptions) error {
	a.log.Info("Loading recipients", zap.String("path", opts.recipientsPath))
	recipients, err := contacts.ParseCSV(opts.recipientsPath)
	if err != nil {
		return fmt.Errorf("failed to parse recipients: %w", err)
	}
	a.log.Info("Loaded recipients", zap.Int("count", len(recipients)))

	tmpl, err := contacts.LoadTemplate(opts.templatePath)
	if err != nil {
		return fmt.Errorf("failed to load template: %w", err)
	}

	if opts.dryRun {
		return a.dryRun(recipients, tmpl)
	}

	svc, session, err := a.buildService()
	if err != nil {
		return err
	}
	defer func() {
		if err := session.Close(); err != nil {
			a.log.Warn("Error closing browser", zap.Error(err))
		}
	}()

	res, err := svc.Authenticate(ctx)
	if err != nil {
		return err
	}
	if !res.Authenticated {
		return fmt.Errorf("%s: log in with a visible browser using the same user data dir first", res.Message)
	}

	start := time.Now()
	report, err := svc.RunBulk(ctx, recipients, tmpl)
	if err != nil {
		return err
	}

	a.log.Info("Run summary",
		zap.String("session_id", report.SessionID),
		zap.Int("recipients", len(recipients)),
		zap.Int("processed", len(report.Results)),
		zap.Int("successful", report.Successful()),
		zap.Int("failed", report.Failed()),
		zap.Int("skipped", report.Skipped()),
		zap.Duration("duration", time.Since(start)))

	if report.Failed() == 0 {
		return nil
	}
	for _, r := range report.Results {
		if !r.Success && !r.Skipped {
			a.log.Warn("Failed recipient", zap.String("username", r.Username), zap.String("error", r.Error))
		}
	}
	return errSendsFailed
}

func (a *app) dryRun(recipients []contacts.Recipient, tmpl *contacts.Template) error {
	failed := 0
	for i, r := range recipients {
		message, err := tmpl.Render(r)
		if err != nil {
			a.log.Error("Failed to render template", zap.String("username", r.Username), zap.Error(err))
			failed++
			continue
		}
		a.log.Info("[DRY RUN] Would send message",
			zap.Int("index", i+1),
			zap.String("username", r.Username),
			zap.String("message", message))
	}
	if failed > 0 {
		return errSendsFailed
	}
	return nil
}
