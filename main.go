package main

import (
	"os"

	"github.com/theapemachine/longbow-go/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
