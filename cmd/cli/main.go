// cmd/cli/main.go
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/keshon/warden/internal/cli"
	"github.com/keshon/warden/internal/config"
)

func main() {
	config.LoadDotEnv()
	if err := cli.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
