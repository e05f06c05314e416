package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/slmcal/pkg/instrument/bench"
	"github.com/charlie0129/slmcal/pkg/operator"
	"github.com/charlie0129/slmcal/pkg/procedure"
	"github.com/charlie0129/slmcal/pkg/report"
	"github.com/charlie0129/slmcal/pkg/spl"
)

// NewRunCommand .
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run [procedure...]",
		Short:   "Run calibration procedures on this terminal",
		GroupID: gBasic,
		Long: `Run calibration procedures on this terminal.

Without arguments a menu of the procedures of the configured standard is
shown. Procedures always run in the order of the standard, whatever order they
are given in. Use 'slmcal daemon' to drive a run remotely instead.`,
		Example: `  slmcal run
  slmcal run self-generated-noise linearity
  slmcal run --simulate acoustic-test`,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := loadStation()
			if err != nil {
				return err
			}
			cfg, err := loadCalibration(st)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			b, err := bench.Open(ctx, st)
			if err != nil {
				return err
			}
			defer func() {
				if err := b.Close(); err != nil {
					logrus.WithError(err).Warn("failed to close bench")
				}
			}()

			op := operator.NewConsole()
			r := procedure.NewRunner(cfg, b.Station, op, nil)

			plan, err := r.Plan(nil)
			if err != nil {
				return err
			}
			ids := parseProcedures(args)
			if len(ids) == 0 {
				ids, err = selectProcedures(ctx, op, cfg.Standard, plan)
				if err != nil {
					return err
				}
			}
			if ids, err = r.Plan(ids); err != nil {
				return err
			}

			runErr := r.Run(ctx, ids)

			fmt.Println()
			if err := report.New(os.Stdout).Render(r.Tables()); err != nil {
				return err
			}
			fmt.Printf("\nRun %s finished: %s\n", r.Status().RunID, phaseText(r.Status().Phase))
			return runErr
		},
	}

	return cmd
}

// NewSPLCommand .
func NewSPLCommand() *cobra.Command {
	opts := spl.DefaultOptions()

	cmd := &cobra.Command{
		Use:     "spl",
		Short:   "Calibrate a microphone against the reference standard",
		GroupID: gBasic,
		Long: `Calibrate a microphone against the reference standard by insert voltage.

The reference standard and the customer device are measured in turn, each for
the given number of repeats. The polarising voltage, amplifier output and insert
voltage are read through the scanner of the multimeter; the counter and the
distortion analyzer are read over the bus.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := loadStation()
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			b, err := bench.Open(ctx, st)
			if err != nil {
				return err
			}
			defer func() {
				if err := b.Close(); err != nil {
					logrus.WithError(err).Warn("failed to close bench")
				}
			}()

			rep, err := spl.New(b.SPL(), operator.NewConsole(), opts).Run(ctx)
			if err != nil {
				return err
			}

			fmt.Println()
			return report.New(os.Stdout).Render(rep.Tables())
		},
	}

	cmd.Flags().IntVar(&opts.Repeats, "repeats", opts.Repeats, "measurements per device")
	cmd.Flags().IntVar(&opts.ScanReadings, "scan-readings", opts.ScanReadings, "scanner readings per measurement")
	cmd.Flags().StringSliceVar(&opts.Devices, "devices", opts.Devices, "devices measured in turn, the reference first")

	return cmd
}
