package main

import (
	"os"

	"github.com/finova/kbretrieval/cmd/kbsearch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
