package main

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/slmcal/pkg/daemon"
	"github.com/charlie0129/slmcal/pkg/instrument/bench"
	"github.com/charlie0129/slmcal/pkg/version"
)

var (
	allowNonRootAccess = false
)

// NewDaemonCommand .
func NewDaemonCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "daemon",
		Hidden:  false,
		Short:   "Run the slmcal daemon in the foreground",
		GroupID: gAdvanced,
		Long: `Run the slmcal daemon in the foreground.

The daemon owns the bench and serves an HTTP API on a unix socket. Runs are
started with 'slmcal start' and answered with 'slmcal answer'. Send SIGHUP to
reload the calibration file while no run is in progress.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logrus.Infof("slmcal version %s commit %s", version.Version, version.GitCommit)

			st, err := loadStation()
			if err != nil {
				return err
			}
			cfg, err := loadCalibration(st)
			if err != nil {
				return err
			}

			b, err := bench.Open(context.Background(), st)
			if err != nil {
				return err
			}
			defer func() {
				if err := b.Close(); err != nil {
					logrus.WithError(err).Warn("failed to close bench")
				}
			}()

			return daemon.Run(cfg, b.Station, daemon.Options{
				Socket:          st.Socket,
				AllowNonRoot:    allowNonRootAccess,
				CalibrationPath: st.Calibration,
			})
		},
	}

	f := cmd.Flags()

	f.BoolVar(&allowNonRootAccess, "allow-non-root-access", false, "Allow non-root users to access the slmcal daemon.")

	return cmd
}
