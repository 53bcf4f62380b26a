package main

import (
	"os"

	"github.com/hmrc/bintray-backup-restore/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
