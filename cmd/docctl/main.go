package main

import (
	"os"

	"docverify/internal/docctl"
)

func main() {
	if err := docctl.Execute(); err != nil {
		os.Exit(1)
	}
}
