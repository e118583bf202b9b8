// Command doctrack is the CLI for the document lifecycle core: document and
// workflow operations, the background daemon, and audit chain tooling.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
