package main

import (
	"fmt"
	"os"

	"github.com/velesbank/moneymove/internal/app"
)

func main() {
	if err := app.RunLedger(); err != nil {
		fmt.Fprintf(os.Stderr, "application error: %v\n", err)
		os.Exit(1)
	}
}
