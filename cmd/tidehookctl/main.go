package main

import (
	"os"

	"github.com/tidehook/tidehook/cmd/tidehookctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
