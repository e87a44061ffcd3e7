package commands

import (
	"fmt"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var statsHistory int

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show catalog, index and load history statistics",
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().IntVar(&statsHistory, "history", 5, "number of load cycles to show")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	eng, _, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer eng.Close()

	stats, err := eng.Stats(cmd.Context())
	if err != nil {
		return err
	}

	bold := color.New(color.Bold)
	bold.Println("Catalog")
	fmt.Printf("  generation:  %d\n", stats.Store.Generation)
	fmt.Printf("  items:       %d\n", stats.Store.ItemCount)
	fmt.Printf("  avg quality: %.3f\n", stats.Store.AvgQuality)

	if len(stats.Store.ThemeCounts) > 0 {
		themes := make([]string, 0, len(stats.Store.ThemeCounts))
		for theme := range stats.Store.ThemeCounts {
			themes = append(themes, theme)
		}
		sort.Slice(themes, func(i, j int) bool {
			return stats.Store.ThemeCounts[themes[i]] > stats.Store.ThemeCounts[themes[j]]
		})
		if len(themes) > 10 {
			themes = themes[:10]
		}
		bold.Println("Top themes")
		for _, theme := range themes {
			fmt.Printf("  %-24s %d\n", theme, stats.Store.ThemeCounts[theme])
		}
	}

	bold.Println("Index")
	fmt.Printf("  items: %d\n", stats.IndexItems)
	fmt.Printf("  model: %s\n", stats.IndexModel)

	history, err := eng.LoadHistory(cmd.Context(), statsHistory)
	if err != nil {
		return err
	}
	if len(history) > 0 {
		bold.Println("Recent loads")
		for _, rec := range history {
			status := color.GreenString(rec.Status)
			if rec.Status != "succeeded" {
				status = color.RedString(rec.Status)
			}
			fmt.Printf("  %s gen=%d in=%d deduped=%d dropped=%d errors=%d %s\n",
				rec.FinishedAt.Format("2006-01-02 15:04:05"), rec.Generation,
				rec.RecordsIn, rec.RecordsDeduped, rec.RecordsDropped,
				len(rec.SourceErrors), status)
		}
	}
	return nil
}
