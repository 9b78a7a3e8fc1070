package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var readCmd = &cobra.Command{
	Use:   "read [book-id] [chapter-id]",
	Short: "Print a downloaded chapter",
	Long:  "Print a chapter from offline storage. Without a chapter id the table of contents is shown",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		controller, err := newController()
		if err != nil {
			return err
		}
		defer controller.Close()

		ctx := cmd.Context()
		offline := controller.Offline()
		bookID := args[0]

		book := offline.GetOfflineBook(ctx, bookID)
		if book == nil {
			return fmt.Errorf("book %s is not available offline", bookID)
		}

		if len(args) == 1 {
			fmt.Println(titleStyle.Render(book.Title))
			if book.Author != "" {
				fmt.Println(subtleStyle.Render("by " + book.Author))
			}
			fmt.Println()
			for i, chapter := range offline.GetOfflineChapters(ctx, bookID) {
				fmt.Printf("%4d  %-10s %s\n", i+1, chapter.ID, chapter.Title)
			}
			return nil
		}

		chapterID := args[1]
		chapter := offline.GetOfflineChapter(ctx, bookID, chapterID)
		if chapter == nil {
			return fmt.Errorf("chapter %s of %s is not available offline", chapterID, bookID)
		}

		fmt.Println(titleStyle.Render(chapter.Title))
		fmt.Println(subtleStyle.Render(book.Title))
		fmt.Println()
		fmt.Println(contentStyle.Render(chapter.Content))

		if save, _ := cmd.Flags().GetBool("save-progress"); save && chapter.OrderIndex != nil {
			offline.SaveOfflineProgress(ctx, bookID, *chapter.OrderIndex, chapter.ID)
		}
		return nil
	},
}

func init() {
	readCmd.Flags().Bool("save-progress", true, "remember this chapter as the reading position")
}
