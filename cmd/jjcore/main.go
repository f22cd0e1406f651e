// Command jjcore is a thin command-line consumer of the jjcore library:
// every subcommand maps onto one repository operation.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
