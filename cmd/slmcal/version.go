package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/charlie0129/slmcal/pkg/version"
)

// NewVersionCommand .
func NewVersionCommand() *cobra.Command {
	var checkDaemon bool

	cmd := &cobra.Command{
		Use:     "version",
		Short:   "Print version",
		GroupID: gAdvanced,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Printf("%s %s\n", version.Version, version.GitCommit)
			if !checkDaemon {
				return nil
			}

			c, err := newAPIClient()
			if err != nil {
				return err
			}
			v, err := c.GetVersion(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("daemon: %s %s\n", v.Version, v.GitCommit)
			if v != version.Get() {
				fmt.Println(bold("Warning: the daemon runs a different version, restart it after upgrading."))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&checkDaemon, "daemon", false, "also print the version of the running daemon")

	return cmd
}
