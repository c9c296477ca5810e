package main

import (
	"os"

	"pyrename/internal/ui/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
