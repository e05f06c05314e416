package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/charlie0129/slmcal/pkg/client"
	"github.com/charlie0129/slmcal/pkg/config"
	"github.com/charlie0129/slmcal/pkg/operator"
	"github.com/charlie0129/slmcal/pkg/uncertainty"
	"github.com/charlie0129/slmcal/pkg/version"
)

var (
	logLevel       = "info"
	unixSocketPath = ""
	configPath     = ""
	stationPath    = ""
	simulate       = false
)

var (
	gBasic        = "Basic:"
	gRemote       = "Remote:"
	gAdvanced     = "Advanced:"
	commandGroups = []string{
		gBasic,
		gRemote,
		gAdvanced,
	}
)

func setupLogger() error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{})
	if term.IsTerminal(int(os.Stderr.Fd())) {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.Kitchen,
		})
	}

	return nil
}

func handleCmdError(err error) {
	var cfgErr *config.Error
	var inputErr *operator.InputError
	var stabErr *uncertainty.StabilityError
	switch {
	case errors.Is(err, client.ErrDaemonNotRunning):
		fmt.Fprintln(os.Stderr, "\nError: slmcal daemon is not running")
		fmt.Fprintln(os.Stderr, "Start it with 'slmcal daemon' or check --daemon-socket.")
	case errors.Is(err, client.ErrPermissionDenied):
		fmt.Fprintln(os.Stderr, "\nError: Permission Denied")
		fmt.Fprintln(os.Stderr, "  - Try running the command again with 'sudo'")
		fmt.Fprintln(os.Stderr, "  - Or restart the daemon with the '--allow-non-root-access' flag")
	case errors.As(err, &cfgErr):
		fmt.Fprintf(os.Stderr, "\nError: invalid configuration key %q\n", cfgErr.Key)
	case errors.As(err, &inputErr):
		fmt.Fprintln(os.Stderr, "\nError: the answer could not be used, the procedure was aborted")
	case errors.As(err, &stabErr):
		fmt.Fprintln(os.Stderr, "\nError: readings are not stable, check the microphone and amplifier")
	}
}

func main() {
	cmd := NewCommand()
	if err := cmd.Execute(); err != nil {
		handleCmdError(err)
		os.Exit(1)
	}
}

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slmcal",
		Short: "slmcal runs semi-automated electrical and acoustic calibrations of sound level meters",
		Long: `slmcal runs semi-automated electrical and acoustic calibrations of sound level meters.

It drives a voltmeter, a waveform generator and a programmable attenuator over
a GPIB-LAN controller, guides the operator through every manual step and
classifies the readings against IEC 61672-3 or IEC 60651 (BS 7580).`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			err := setupLogger()
			if err != nil {
				return err
			}

			if cmd.GroupID == gRemote {
				checkDaemonVersion(cmd.Context())
			}

			return nil
		},
	}

	globalFlags := cmd.PersistentFlags()
	globalFlags.StringVarP(&logLevel, "log-level", "l", "info", "log level (trace, debug, info, warn, error, fatal, panic)")
	globalFlags.StringVarP(&configPath, "config", "c", "", "calibration file path (default from station settings)")
	globalFlags.StringVar(&stationPath, "station", "", "station settings file (default ./slmcal.yaml or $HOME/.slmcal/slmcal.yaml)")
	globalFlags.StringVar(&unixSocketPath, "daemon-socket", "", "daemon unix socket path (default from station settings)")
	globalFlags.BoolVar(&simulate, "simulate", false, "use simulated instruments")

	for _, i := range commandGroups {
		cmd.AddGroup(&cobra.Group{
			ID:    i,
			Title: i,
		})
	}

	cmd.AddCommand(
		NewRunCommand(),
		NewSPLCommand(),
		NewTablesCommand(),
		NewDaemonCommand(),
		NewStartCommand(),
		NewCancelCommand(),
		NewStatusCommand(),
		NewPromptCommand(),
		NewAnswerCommand(),
		NewResultsCommand(),
		NewWatchCommand(),
		NewInstallCommand(),
		NewUninstallCommand(),
		NewVersionCommand(),
	)

	return cmd
}

// checkDaemonVersion warns when the daemon was built from another version.
// A daemon that cannot be reached is reported by the command itself.
func checkDaemonVersion(ctx context.Context) {
	c, err := newAPIClient()
	if err != nil {
		return
	}
	v, err := c.GetVersion(ctx)
	if err != nil {
		return
	}
	if v != version.Get() {
		logrus.WithFields(logrus.Fields{
			"clientVersion": version.Version,
			"daemonVersion": v.Version,
		}).Warn("Version mismatch between client and daemon. Restart the daemon after upgrading so both are the same version.")
	}
}
