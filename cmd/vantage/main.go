// vantage is the ABR ingest and search service: a PostgreSQL-backed
// store of Australian Business Register records with a streaming XML
// ingestion pipeline and a paginated HTTP search API.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
