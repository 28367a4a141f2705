package main

import (
	"os"

	"github.com/formkeeper/formkeeper/cmd/formkeeper/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
