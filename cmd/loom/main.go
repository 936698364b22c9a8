// Command loom builds a multimodal pretraining corpus: it downloads dataset
// releases, extracts per-entity annotation payloads, aligns the datasets and
// writes the assembled instances into an instance store.
package main

import (
	"fmt"
	"os"
)

func main() {
	rootCmd := newRootCommand(os.Stdout, os.Stderr)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
