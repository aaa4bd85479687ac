package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/cloudx-io/openmarket/cmd/marketd/commands"
)

func main() {
	if err := commands.NewRootCmd().ExecuteContext(context.Background()); err != nil {
		if errors.Is(err, commands.ErrVerificationFailed) {
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
}
