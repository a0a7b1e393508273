package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackcore/queryengine/internal/server"
)

// statsCmd boots the engine just long enough to print its (empty, for a
// freshly started process) statistics snapshot — mainly useful to confirm
// the collector wiring and JSON shape without standing up the HTTP server.
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print the current query statistics snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		engines, cleanup, err := server.Boot()
		if err != nil {
			return err
		}
		defer cleanup()

		out, err := json.MarshalIndent(engines.Stats.Snapshot(), "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}
