package main

import (
	"fmt"
	"os"

	"github.com/h2team/h2team/internal/cmd"
)

func main() {
	err := cmd.NewRootCmd().Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "[error] %v\n", err)
	}
	os.Exit(cmd.ExitCode(err))
}
