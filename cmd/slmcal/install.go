package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	daemonutils "github.com/charlie0129/slmcal/pkg/utils/daemon"
)

func init() {
	commandGroups = append(commandGroups, gInstallation)
}

var gInstallation = "Installation:"

// NewInstallCommand .
func NewInstallCommand() *cobra.Command {
	allowNonRootAccess := false
	var env []string

	cmd := &cobra.Command{
		Use:     "install",
		Short:   "Install the slmcal daemon as a systemd service",
		GroupID: gInstallation,
		Long: `Install the slmcal daemon as a systemd service (system-wide).

This makes the daemon start on boot and own the bench. You must run this command as root.

Station settings are read from the station file as usual; --env adds SLMCAL_*
overrides to the unit, e.g. --env SLMCAL_CONTROLLER=10.0.0.5:1234.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			i := daemonutils.NewInstaller()
			i.Environment = env
			if allowNonRootAccess {
				logrus.Info("non-root users are allowed to access the slmcal daemon.")
				i.Args = append(i.Args, "--allow-non-root-access")
			} else {
				logrus.Info("only root user is allowed to access the slmcal daemon.")
			}
			if stationPath != "" {
				i.Args = append(i.Args, "--station", stationPath)
			}

			if err := i.Install(); err != nil {
				if os.Geteuid() != 0 {
					logrus.Errorf("you must run this command as root")
				}
				return fmt.Errorf("failed to install daemon: %v", err)
			}

			logrus.Infof("installation succeeded")

			exePath, _ := os.Executable()
			cmd.Printf("systemd will use the current binary (%s), so please do not move it. Run 'slmcal install' again if you do.\n", exePath)
			return nil
		},
	}

	cmd.Flags().BoolVar(&allowNonRootAccess, "allow-non-root-access", false, "Allow non-root users to access the slmcal daemon.")
	cmd.Flags().StringArrayVar(&env, "env", nil, "KEY=value environment for the service")

	return cmd
}

// NewUninstallCommand .
func NewUninstallCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "uninstall",
		Short:   "Uninstall the slmcal systemd service",
		GroupID: gInstallation,
		Long: `Stop the slmcal daemon and remove its systemd unit.

You must run this command as root.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := daemonutils.NewInstaller().Uninstall(); err != nil {
				if os.Geteuid() != 0 {
					logrus.Errorf("you must run this command as root")
				}
				return fmt.Errorf("failed to uninstall daemon: %v", err)
			}
			fmt.Println("successfully uninstalled")
			return nil
		},
	}
}
