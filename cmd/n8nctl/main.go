package main

import (
	"os"

	"github.com/enthus-appdev/n8nctl/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
