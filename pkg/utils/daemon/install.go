// Package daemon installs the slmcal daemon as a systemd service.
package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/sirupsen/logrus"
)

const DefaultUnitPath = "/etc/systemd/system/slmcal.service"

const unitTemplate = `[Unit]
Description=slmcal sound level meter calibration daemon
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
ExecStart={{ .ExecStart }}
Restart=on-failure
RestartSec=5
{{- range .Environment }}
Environment={{ . }}
{{- end }}

[Install]
WantedBy=multi-user.target
`

// Installer writes the unit file and drives systemctl.
type Installer struct {
	UnitPath string
	// Args are passed to 'slmcal daemon'.
	Args []string
	// Environment holds KEY=value pairs, e.g. SLMCAL_CONTROLLER.
	Environment []string
	// Systemctl runs systemctl with the given arguments.
	Systemctl func(args ...string) error
}

func NewInstaller() *Installer {
	return &Installer{
		UnitPath:  DefaultUnitPath,
		Systemctl: systemctl,
	}
}

func systemctl(args ...string) error {
	out, err := exec.Command("systemctl", args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("systemctl %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (i *Installer) unitName() string {
	return filepath.Base(i.UnitPath)
}

// Unit renders the unit file for the executable at exePath.
func (i *Installer) Unit(exePath string) (string, error) {
	t, err := template.New("unit").Parse(unitTemplate)
	if err != nil {
		return "", err
	}
	execStart := append([]string{exePath, "daemon"}, i.Args...)
	var b strings.Builder
	err = t.Execute(&b, map[string]any{
		"ExecStart":   strings.Join(execStart, " "),
		"Environment": i.Environment,
	})
	return b.String(), err
}

func (i *Installer) Install() error {
	// Get the path to the current executable
	exePath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get the path to the current executable: %w", err)
	}
	exePath, err = filepath.Abs(exePath)
	if err != nil {
		return fmt.Errorf("failed to get the absolute path to the current executable: %w", err)
	}

	logrus.Infof("current executable path: %s", exePath)

	unit, err := i.Unit(exePath)
	if err != nil {
		return fmt.Errorf("failed to render unit: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(i.UnitPath), 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(i.UnitPath), err)
	}

	// warn if the file already exists
	if _, err := os.Stat(i.UnitPath); err == nil {
		logrus.Warnf("%s already exists, overwriting", i.UnitPath)
	}

	logrus.Infof("writing %s", i.UnitPath)
	if err := os.WriteFile(i.UnitPath, []byte(unit), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", i.UnitPath, err)
	}

	logrus.Infof("starting slmcal")
	if err := i.Systemctl("daemon-reload"); err != nil {
		return err
	}
	return i.Systemctl("enable", "--now", i.unitName())
}
