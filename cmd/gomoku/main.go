package main

import (
	"fmt"
	"os"

	"github.com/C0neF/gomoku-project/internal/cmd"
	"github.com/C0neF/gomoku-project/internal/logging"
)

func main() {
	// Quiet by default so logs stay off the game screen.
	flush, err := logging.Init("error")
	if err != nil {
		fmt.Fprintln(os.Stderr, "logging:", err)
		os.Exit(1)
	}
	defer flush()

	cmd.Execute()
}
