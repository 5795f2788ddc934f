package main

import (
	"os"

	"github.com/dl-alexandre/gsyncd/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
