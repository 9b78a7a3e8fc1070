package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List books available offline",
	Long:  "Display every downloaded book in a formatted table",
	RunE: func(cmd *cobra.Command, args []string) error {
		controller, err := newController()
		if err != nil {
			return err
		}
		defer controller.Close()

		ctx := cmd.Context()
		offline := controller.Offline()
		books := offline.GetOfflineBooks(ctx)

		if len(books) == 0 {
			if !offline.IsAvailable() {
				fmt.Println("⚠️  Offline storage is unavailable.")
				return nil
			}
			fmt.Println("📚 No books available offline. Use 'novels download <book-id>' to add one.")
			return nil
		}

		columns := []table.Column{
			{Title: "ID", Width: 12},
			{Title: "Title", Width: 36},
			{Title: "Author", Width: 20},
			{Title: "Chapters", Width: 9},
			{Title: "Progress", Width: 9},
			{Title: "Downloaded", Width: 16},
		}

		rows := []table.Row{}
		for _, book := range books {
			reading := "-"
			if p := offline.GetOfflineProgress(ctx, book.ID); p != nil {
				reading = fmt.Sprintf("%d", p.ChapterIndex+1)
			}
			rows = append(rows, table.Row{
				truncateString(book.ID, 12),
				truncateString(book.Title, 34),
				truncateString(book.Author, 18),
				fmt.Sprintf("%d", book.TotalChapters),
				reading,
				humanize.Time(book.DownloadedAt),
			})
		}

		t := table.New(
			table.WithColumns(columns),
			table.WithRows(rows),
			table.WithFocused(false),
			table.WithHeight(len(rows)),
		)

		s := table.DefaultStyles()
		s.Header = s.Header.
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("240")).
			BorderBottom(true).
			Bold(true)
		s.Selected = s.Selected.
			Foreground(lipgloss.NoColor{}).
			Background(lipgloss.NoColor{}).
			Bold(false)
		t.SetStyles(s)

		fmt.Printf("\n📚 Offline library (%d books)\n\n", len(books))
		fmt.Println(t.View())
		return nil
	},
}

func truncateString(s string, width int) string {
	if len([]rune(s)) <= width {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:width-1])) + "…"
}
