package main

import (
	"os"

	"github.com/OnSocial-Labs/onsocial-relayer/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
