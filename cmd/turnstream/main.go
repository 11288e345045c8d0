// turnstream - streaming turn executor for Responses-style model APIs.
package main

import (
	"fmt"
	"os"

	"github.com/harun/turnstream/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
