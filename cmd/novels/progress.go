package cmd

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var progressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Show or record the reading position of a book",
}

var progressGetCmd = &cobra.Command{
	Use:   "get [book-id]",
	Short: "Show the saved reading position",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		controller, err := newController()
		if err != nil {
			return err
		}
		defer controller.Close()

		p := controller.Offline().GetOfflineProgress(cmd.Context(), args[0])
		if p == nil {
			fmt.Println("No reading position saved.")
			return nil
		}
		fmt.Printf("📖 Chapter %d (%s), %s\n", p.ChapterIndex+1, p.ChapterID, humanize.Time(p.UpdatedAt))
		return nil
	},
}

var progressSetCmd = &cobra.Command{
	Use:   "set [book-id] [chapter-index] [chapter-id]",
	Short: "Record the reading position",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := strconv.Atoi(args[1])
		if err != nil || index < 0 {
			return fmt.Errorf("chapter index must be a non-negative number, got %q", args[1])
		}

		controller, err := newController()
		if err != nil {
			return err
		}
		defer controller.Close()

		controller.Offline().SaveOfflineProgress(cmd.Context(), args[0], index, args[2])
		fmt.Println("✅ Reading position saved")
		return nil
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync [book-id]",
	Short: "Push saved reading positions to the platform",
	Long:  "Push the saved reading position of one book, or of every book when no id is given",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		controller, err := newController()
		if err != nil {
			return err
		}
		defer controller.Close()

		offline := controller.Offline()
		if len(args) == 0 {
			fmt.Printf("🔄 %d reading positions synced\n", offline.SyncAllOfflineProgress(cmd.Context()))
			return nil
		}
		if offline.SyncOfflineProgress(cmd.Context(), args[0]) {
			fmt.Println("✅ Progress synced")
			return nil
		}
		fmt.Println("⏸  Progress not synced (offline, nothing saved, or the platform refused it)")
		return nil
	},
}

func init() {
	progressCmd.AddCommand(progressGetCmd)
	progressCmd.AddCommand(progressSetCmd)
}
