package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/vantagesearch/vantage/internal/ingest"
)

var seedCmd = &cobra.Command{
	Use:   "seed <extract.xml>",
	Short: "Ingest a register extract file",
	Long: "Streams one ABR extract file into the database. The same pipeline backs\n" +
		"the POST /api/v1/ingest endpoint; seed is the offline form.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		run, err := ingest.Start(cmd.Context(), ingestOptions(cfg, args[0]))
		if err != nil {
			return err
		}
		fmt.Printf("Ingesting %s (run %s)\n", args[0], run.ID)

		done, err := run.Drain(progressPrinter())
		if err != nil {
			return err
		}

		fmt.Printf("\nProcessed %d records (%d inserted, %d updated) in %s\n",
			done.TotalProcessed, done.TotalInserted, done.TotalUpdated, done.Duration.Round(time.Second))
		return nil
	},
}

// progressPrinter refreshes a single line on terminals and emits plain
// lines when output is piped.
func progressPrinter() func(int) {
	interactive := term.IsTerminal(int(os.Stdout.Fd()))
	return func(processed int) {
		if interactive {
			fmt.Printf("\rProcessed %d records...", processed)
			return
		}
		fmt.Printf("Processed %d records\n", processed)
	}
}
