// flic2ctl pairs, monitors and manages Flic 2 buttons from the
// command line.
//
// Usage:
//
//	flic2ctl scan
//	flic2ctl pair <address>
//	flic2ctl listen <address>
//	flic2ctl ping <address>
//	flic2ctl buttons
//	flic2ctl forget <address>
package main

import (
	"fmt"
	"os"

	"github.com/bleasdale/flic2/cmd/flic2ctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
