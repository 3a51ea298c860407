package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/magabrotheeeer/host-lifecycle/internal/app/core"
	"github.com/magabrotheeeer/host-lifecycle/internal/lib/sl"
	"github.com/magabrotheeeer/host-lifecycle/internal/services/lifecycle"
	"github.com/magabrotheeeer/host-lifecycle/internal/services/scheduler"
)

// sweepNames разворачивает имя пакета (daily, weekly) в список проверок.
func sweepNames(arg string) []string {
	if names, ok := scheduler.Batches()[arg]; ok {
		return names
	}
	return []string{arg}
}

func (c *cli) sweepCmd() *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "sweep <name|daily|weekly>",
		Short: "Run a periodic sweep once",
		Long: "Runs one sweep or a whole batch immediately and prints the results as JSON.\n" +
			"Known sweeps: " + fmt.Sprint(append(lifecycle.DailySweeps(), lifecycle.WeeklySweeps()...)),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			log := sl.New(cfg.Env, cmd.ErrOrStderr())
			app, err := core.Build(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer app.Close()

			now := app.Clock.Now()
			if at != "" {
				if now, err = time.Parse(time.RFC3339, at); err != nil {
					return fmt.Errorf("invalid --at: %w", err)
				}
			}

			var results []lifecycle.SweepResult
			for _, name := range sweepNames(args[0]) {
				res, err := app.Lifecycle.RunSweep(cmd.Context(), name, now)
				if err != nil {
					return fmt.Errorf("sweep %s: %w", name, err)
				}
				results = append(results, res)
			}
			enc := json.NewEncoder(c.out)
			enc.SetIndent("", "  ")
			return enc.Encode(results)
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "evaluate the sweep as of this RFC3339 time")
	return cmd
}
