package commands

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/bricklore/brickengine/internal/catalog"
)

var (
	queryTheme     string
	queryYearMin   int
	queryYearMax   int
	queryPriceMax  float64
	queryPiecesMin int
)

var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Answer a natural-language query against the loaded catalog",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runQuery,
}

func init() {
	queryCmd.Flags().StringVar(&queryTheme, "theme", "", "restrict results to a theme")
	queryCmd.Flags().IntVar(&queryYearMin, "year-min", 0, "earliest release year")
	queryCmd.Flags().IntVar(&queryYearMax, "year-max", 0, "latest release year")
	queryCmd.Flags().Float64Var(&queryPriceMax, "price-max", 0, "maximum retail price")
	queryCmd.Flags().IntVar(&queryPiecesMin, "pieces-min", 0, "minimum piece count")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	eng, _, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer eng.Close()

	filter := &catalog.Filter{Theme: queryTheme}
	if queryYearMin > 0 {
		filter.YearMin = &queryYearMin
	}
	if queryYearMax > 0 {
		filter.YearMax = &queryYearMax
	}
	if queryPriceMax > 0 {
		filter.PriceMax = &queryPriceMax
	}
	if queryPiecesMin > 0 {
		filter.PiecesMin = &queryPiecesMin
	}

	queryText := strings.Join(args, " ")
	answer, err := eng.AnswerQuery(cmd.Context(), queryText, filter)
	if err != nil {
		return err
	}

	faint := color.New(color.Faint)
	faint.Printf("strategy=%s intent=%s k=%d threshold=%.2f cached=%v\n",
		answer.Plan.Strategy, answer.Plan.Intent, answer.Plan.K,
		answer.Plan.SimilarityThreshold, answer.Cached)

	if len(answer.Results) == 0 {
		fmt.Println("No results.")
		return nil
	}

	bold := color.New(color.Bold)
	for i, res := range answer.Results {
		bold.Printf("%2d. %s", i+1, res.Item.Name)
		if res.Item.SetNumber != "" {
			fmt.Printf(" (%s)", res.Item.SetNumber)
		}
		fmt.Printf("  score=%.3f quality=%.2f\n", res.Score, res.Item.QualityScore)

		var details []string
		if res.Item.Theme != "" {
			details = append(details, res.Item.Theme)
		}
		if res.Item.Year != nil {
			details = append(details, fmt.Sprintf("%d", *res.Item.Year))
		}
		if res.Item.PieceCount != nil {
			details = append(details, fmt.Sprintf("%d pieces", *res.Item.PieceCount))
		}
		if res.Item.Price != nil {
			details = append(details, fmt.Sprintf("$%.2f", *res.Item.Price))
		}
		if len(details) > 0 {
			fmt.Printf("    %s\n", strings.Join(details, " · "))
		}
	}
	return nil
}
