package main

import (
	"fmt"
	"os"

	"github.com/lopfuzz/lopfuzz/cmd/lopfuzz/app"
)

func main() {
	if err := app.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
