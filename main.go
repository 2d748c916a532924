package main

import (
	"os"

	"seedpipe/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
