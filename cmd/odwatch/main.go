package main

import (
	"os"

	"github.com/hkloudou/odwatch/internal/cli"
)

func main() {
	os.Exit(int(cli.Run()))
}
