// Command backoffice runs the cooperative loan back office: the HTTP API with
// its scheduler, plus one-shot maintenance commands.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
