package main

import (
	"os"

	"github.com/jzx17/gometer/cmd/gometer/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
