package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Precache the app shell for the configured version",
	RunE: func(cmd *cobra.Command, args []string) error {
		controller, err := newController()
		if err != nil {
			return err
		}
		defer controller.Close()
		if err := controller.RequireCache(); err != nil {
			return err
		}

		report, err := controller.Lifecycle().Install(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("📦 Installed %s: %d assets cached\n", controller.Registry().Version(), report.Cached)
		failed := make([]string, 0, len(report.Failed))
		for asset := range report.Failed {
			failed = append(failed, asset)
		}
		sort.Strings(failed)
		for _, asset := range failed {
			fmt.Printf("  ⚠️  %s: %v\n", asset, report.Failed[asset])
		}
		return nil
	},
}

var activateCmd = &cobra.Command{
	Use:   "activate",
	Short: "Drop cache partitions of older versions",
	RunE: func(cmd *cobra.Command, args []string) error {
		controller, err := newController()
		if err != nil {
			return err
		}
		defer controller.Close()
		if err := controller.RequireCache(); err != nil {
			return err
		}

		report, err := controller.Lifecycle().Activate(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("✅ Activated %s\n", controller.Registry().Version())
		for _, name := range report.Deleted {
			fmt.Printf("  🗑  %s\n", name)
		}
		return nil
	},
}
