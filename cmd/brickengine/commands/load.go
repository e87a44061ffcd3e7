package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Run a load cycle: fetch all sources, dedupe and rebuild the index",
	RunE:  runLoad,
}

func init() {
	rootCmd.AddCommand(loadCmd)
}

func runLoad(cmd *cobra.Command, args []string) error {
	eng, _, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer eng.Close()

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("Loading catalog"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(os.Stderr, "\n")
		}),
	)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case <-time.After(100 * time.Millisecond):
				_ = bar.Add(1)
			}
		}
	}()

	report, err := eng.RunLoadCycle(cmd.Context())
	close(done)
	_ = bar.Finish()
	if err != nil {
		return err
	}

	color.New(color.Bold).Printf("Load complete (generation %d, job %s)\n", report.Generation, report.JobID)
	fmt.Printf("  records in:   %d\n", report.RecordsIn)
	fmt.Printf("  after dedupe: %d\n", report.RecordsDeduped)
	fmt.Printf("  dropped:      %d\n", report.RecordsDropped)
	for src, n := range report.PerSource {
		fmt.Printf("  %-13s %d\n", src+":", n)
	}
	if len(report.SourceErrors) > 0 {
		fmt.Println(color.YellowString("Source errors (non-fatal):"))
		for _, e := range report.SourceErrors {
			fmt.Printf("  - %s\n", e)
		}
	}
	return nil
}
