package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"carbonlock/marketplace-portal/internal/app"
	"carbonlock/marketplace-portal/internal/config"
	"carbonlock/marketplace-portal/internal/marketplace"
	"carbonlock/marketplace-portal/internal/notifications"
	"carbonlock/marketplace-portal/internal/remote"
)

// cli carries the state shared by every command of one invocation.
type cli struct {
	out     io.Writer
	cfgPath string
	verbose bool

	cfg    *config.Config
	logger *zap.Logger
	remote remote.ContractService
	portal *marketplace.Service

	// newRemote is swapped in tests so invocations share one stand-in.
	newRemote func(config.RemoteConfig, *zap.Logger) (remote.ContractService, error)
}

func newCLI(out io.Writer) *cli {
	return &cli{out: out, newRemote: app.NewRemote}
}

// Notify prints toasts as they are raised.
func (c *cli) Notify(kind notifications.ToastType, message string) notifications.Toast {
	fmt.Fprintln(c.out, toastStyle(kind).Render(message))
	return notifications.Toast{Type: kind, Message: message}
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "contracts-cli",
		Short: "Browse and trade carbon credit forward contracts",
		Long: `contracts-cli talks to the remote contract service the same way the portal
API does: lists are fetched once per invocation, forms are validated locally
and every mutation is confirmed with a toast.

Configuration is read from config.json, a .env file and the environment.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup(cmd.Context())
		},
	}
	root.SetOut(c.out)
	root.PersistentFlags().StringVarP(&c.cfgPath, "config", "c", "config.json", "Path to the configuration file")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		newListCmd(c),
		newShowCmd(c),
		newCreateCmd(c),
		newEditCmd(c),
		newDeleteCmd(c),
		newBuyCmd(c),
		newExpireCmd(c),
		newCreditsCmd(c),
		newDashboardCmd(c),
		newExportCmd(c),
	)
	return root
}

func (c *cli) setup(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.LoadConfig(c.cfgPath)
	if err != nil {
		return err
	}
	c.cfg = cfg

	logCfg := config.LoggingConfig{Level: "warn", Development: true}
	if c.verbose {
		logCfg.Level = "debug"
	}
	if c.logger, err = app.NewLogger(logCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if c.remote, err = c.newRemote(cfg.Remote, c.logger); err != nil {
		return err
	}
	c.portal = app.NewMarketplace(cfg, c.remote, c, c.logger)

	initCtx, cancel := context.WithTimeout(ctx, app.InitTimeout(cfg.Remote))
	defer cancel()
	return c.portal.Init(initCtx)
}

// teardown releases what setup acquired. It runs after every invocation,
// including failed ones.
func (c *cli) teardown() {
	if c.remote != nil {
		if err := c.remote.Close(); err != nil && c.logger != nil {
			c.logger.Warn("Failed to close contract service client", zap.Error(err))
		}
		c.remote = nil
	}
	if c.logger != nil {
		_ = c.logger.Sync()
	}
}
