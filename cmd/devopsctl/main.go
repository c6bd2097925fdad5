package main

import (
	"context"
	"fmt"
	"os"

	"devopsdash/internal/cli"
)

func main() {
	cli.LoadEnvFile()

	app := newApp(os.Stdout)
	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "devopsctl: %v\n", err)
		os.Exit(1)
	}
}
