package cmd

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete [book-id]",
	Short: "Remove a book from offline storage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		controller, err := newController()
		if err != nil {
			return err
		}
		defer controller.Close()

		if err := controller.Offline().DeleteOfflineBook(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("🗑  Deleted %s\n", args[0])
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every offline book and reading position",
	RunE: func(cmd *cobra.Command, args []string) error {
		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			return errors.New("refusing to clear offline data without --yes")
		}

		controller, err := newController()
		if err != nil {
			return err
		}
		defer controller.Close()

		if err := controller.Offline().ClearAllOfflineData(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("🧹 Offline data cleared")
		return nil
	},
}

var sizeCmd = &cobra.Command{
	Use:   "size",
	Short: "Show how much disk space offline data uses",
	RunE: func(cmd *cobra.Command, args []string) error {
		controller, err := newController()
		if err != nil {
			return err
		}
		defer controller.Close()

		usage := controller.Offline().GetCacheSize(cmd.Context())
		if usage == nil {
			fmt.Println("Storage size is unknown.")
			return nil
		}
		if usage.Quota > 0 {
			percent := float64(usage.Usage) / float64(usage.Quota) * 100
			fmt.Printf("💾 %s of %s (%.1f%%)\n",
				humanize.IBytes(uint64(usage.Usage)), humanize.IBytes(uint64(usage.Quota)), percent)
			return nil
		}
		fmt.Printf("💾 %s\n", humanize.IBytes(uint64(usage.Usage)))
		return nil
	},
}

var offlineCmd = &cobra.Command{
	Use:       "offline [on|off]",
	Short:     "Show or switch offline mode",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"on", "off"},
	RunE: func(cmd *cobra.Command, args []string) error {
		controller, err := newController()
		if err != nil {
			return err
		}
		defer controller.Close()

		offline := controller.Offline()
		if len(args) == 1 {
			if err := offline.SetOfflineMode(args[0] == "on"); err != nil {
				return err
			}
		}

		if offline.IsOfflineMode() {
			fmt.Println("✈️  Offline mode is on")
		} else {
			fmt.Println("🌐 Offline mode is off")
		}
		return nil
	},
}

func init() {
	clearCmd.Flags().BoolP("yes", "y", false, "confirm removal")
}
