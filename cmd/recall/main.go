package main

import (
	"os"

	"github.com/pbrown/claude-recall/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
