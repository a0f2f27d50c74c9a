package main

import (
	"context"
	"fmt"
	"os"

	"github.com/bryanEnzee/skillance-relay/pkg/cmd"
)

func main() {
	if err := cmd.NewRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
