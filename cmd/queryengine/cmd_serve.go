package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
)

// serveCmd delegates to cmd/server, the project's HTTP binary, the same
// way the scaffolding CLI shells out to `go build`/`go run` rather than
// importing main packages directly.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP query API",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := exec.Command("go", "run", "./cmd/server")
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		c.Env = os.Environ()
		if err := c.Run(); err != nil {
			return fmt.Errorf("serve failed: %w", err)
		}
		return nil
	},
}
