// Command wellctl is the operator CLI: it seeds instruments, validates
// definitions, prints analytics reports, issues development tokens and runs
// migrations.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
