package cmd

import (
	"fmt"
	"sync"

	"github.com/spf13/cobra"
)

var downloadCmd = &cobra.Command{
	Use:   "download [book-id]",
	Short: "Download a book for offline reading",
	Long:  "Fetch every chapter of a book from the platform and store it for offline reading",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bookID := args[0]

		controller, err := newController()
		if err != nil {
			return err
		}
		defer controller.Close()

		fmt.Printf("📥 Downloading book %s\n", bookID)

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for progress := range controller.Downloader().GetProgressChannel() {
				switch progress.Status {
				case "downloading":
					if progress.ChapterID != "" {
						fmt.Printf("  %s %s %s\n",
							progressBar(progress.Done, progress.Total, 30),
							statusStyle(progress.Status).Render(fmt.Sprintf("%d/%d", progress.Done, progress.Total)),
							progress.ChapterID)
					}
				case "saving":
					fmt.Println("  " + statusStyle(progress.Status).Render(fmt.Sprintf("saving %d chapters", progress.Total)))
				case "error":
					fmt.Println("  " + statusStyle(progress.Status).Render(progress.Error.Error()))
				}
			}
		}()

		err = controller.DownloadBook(cmd.Context(), bookID)
		controller.Downloader().Close()
		wg.Wait()
		if err != nil {
			return fmt.Errorf("download failed: %w", err)
		}

		fmt.Println("\n✅ Download complete! Available offline.")
		return nil
	},
}
