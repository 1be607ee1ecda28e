package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/aman-churiwal/crm-gateway/internal/config"
	"github.com/aman-churiwal/crm-gateway/internal/logging"
	"github.com/aman-churiwal/crm-gateway/internal/mail"
)

func newMailVerifyCommand() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "mail-verify",
		Short: "Probe the configured SMTP providers and report which one would be used",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return errors.Wrap(err, "load config")
			}
			logger, err := logging.New(cfg)
			if err != nil {
				return errors.Wrap(err, "build logger")
			}
			defer func() { _ = logger.Sync() }()

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			supervisor := mail.NewSupervisor(mail.SettingsFromConfig(cfg), logger.Sugar())
			defer func() { _ = supervisor.Close(context.Background()) }()

			if err := supervisor.Start(ctx); err != nil {
				return err
			}

			provider, port, _ := supervisor.Current()
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s on port %d\n", provider, port)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall deadline for probing every provider")

	return cmd
}
