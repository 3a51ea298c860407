// Package main hostctl: служебные команды платформы (миграции, ручной запуск проверок, сотрудники).
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/magabrotheeeer/host-lifecycle/internal/config"
	"github.com/magabrotheeeer/host-lifecycle/internal/lib/sl"
)

// Коды завершения.
const (
	exitSuccess = 0
	exitError   = 1
)

type cli struct {
	configPath string
	out        io.Writer
}

func (c *cli) loadConfig() (*config.Config, error) {
	path := c.configPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		return nil, fmt.Errorf("config path is not set: use --config or CONFIG_PATH")
	}
	return config.Load(path)
}

func newRootCmd(out io.Writer) *cobra.Command {
	c := &cli{out: out}
	root := &cobra.Command{
		Use:           "hostctl",
		Short:         "Maintenance commands for the host lifecycle platform",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "path to the YAML config (defaults to CONFIG_PATH)")

	root.AddCommand(
		c.migrateCmd(),
		c.sweepCmd(),
		c.createStaffCmd(),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		sl.New(os.Getenv("ENV"), os.Stderr).Error("command failed", sl.Err(err))
		os.Exit(exitError)
	}
	os.Exit(exitSuccess)
}
