package main

import (
	"os"

	"github.com/MintHotspot/hotspot-backend-go/src/cli"
)

func main() {
	os.Exit(cli.Execute())
}
