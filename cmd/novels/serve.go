package cmd

import (
	"fmt"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kerbaras/novels/pkg/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the reader app through the offline cache",
	Long:  "Run a local proxy that answers the reader app from the cache when the platform cannot be reached",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = cfg.Server.Addr
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		controller, err := newController()
		if err != nil {
			return err
		}
		defer controller.Close()
		if err := controller.RequireCache(); err != nil {
			return err
		}

		if err := controller.Lifecycle().Ensure(ctx); err != nil {
			return fmt.Errorf("prepare cache: %w", err)
		}

		srv, err := server.New(server.Options{
			Addr:      addr,
			Origin:    cfg.Origin(),
			Transport: controller.Router(),
			Logger:    logger,
			Status: func() map[string]any {
				lifecycle := controller.Lifecycle()
				state, _ := lifecycle.State()
				return map[string]any{
					"version":      controller.Registry().Version(),
					"lifecycle":    state.String(),
					"skip_waiting": lifecycle.SkipWaiting(),
					"claimed":      lifecycle.Claimed(),
					"offline_mode": controller.Offline().IsOfflineMode(),
					"store":        controller.StoreHandle().State().String(),
				}
			},
		})
		if err != nil {
			return err
		}

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			controller.Watcher().Run(ctx)
		}()
		defer wg.Wait()

		fmt.Printf("📡 Serving %s on http://%s\n", cfg.Origin(), addr)
		err = srv.ListenAndServe(ctx)
		stop()
		return err
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default from config)")
}
