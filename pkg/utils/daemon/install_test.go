package daemon

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestInstaller(t *testing.T) (*Installer, *[]string) {
	var calls []string
	return &Installer{
		UnitPath:    filepath.Join(t.TempDir(), "systemd", "slmcal.service"),
		Args:        []string{"--allow-non-root-access"},
		Environment: []string{"SLMCAL_CONTROLLER=10.0.0.5:1234"},
		Systemctl: func(args ...string) error {
			calls = append(calls, strings.Join(args, " "))
			return nil
		},
	}, &calls
}

func TestUnit(t *testing.T) {
	i, _ := newTestInstaller(t)
	unit, err := i.Unit("/usr/local/bin/slmcal")
	require.NoError(t, err)
	assert.Contains(t, unit, "ExecStart=/usr/local/bin/slmcal daemon --allow-non-root-access\n")
	assert.Contains(t, unit, "\nEnvironment=SLMCAL_CONTROLLER=10.0.0.5:1234\n")
	assert.Contains(t, unit, "WantedBy=multi-user.target")
}

func TestInstallAndUninstall(t *testing.T) {
	i, calls := newTestInstaller(t)

	require.NoError(t, i.Install())
	b, err := os.ReadFile(i.UnitPath)
	require.NoError(t, err)
	assert.Contains(t, string(b), " daemon --allow-non-root-access")
	assert.Equal(t, []string{"daemon-reload", "enable --now slmcal.service"}, *calls)

	*calls = nil
	require.NoError(t, i.Uninstall())
	assert.NoFileExists(t, i.UnitPath)
	assert.Equal(t, []string{"disable --now slmcal.service", "daemon-reload"}, *calls)

	// a second uninstall tolerates the missing unit
	require.NoError(t, i.Uninstall())
}
