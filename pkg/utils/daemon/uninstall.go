package daemon

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

func (i *Installer) Uninstall() error {
	logrus.Infof("stopping slmcal")

	if err := i.Systemctl("disable", "--now", i.unitName()); err != nil {
		return fmt.Errorf("failed to stop %s: %w. Are you root?", i.unitName(), err)
	}

	logrus.Infof("removing %s", i.UnitPath)

	if err := os.Remove(i.UnitPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w. Are you root?", i.UnitPath, err)
	}

	return i.Systemctl("daemon-reload")
}
