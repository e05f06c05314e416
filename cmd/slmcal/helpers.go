package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/slmcal/pkg/calibration"
	"github.com/charlie0129/slmcal/pkg/client"
	"github.com/charlie0129/slmcal/pkg/config"
	"github.com/charlie0129/slmcal/pkg/operator"
	"github.com/charlie0129/slmcal/pkg/procedure"
)

// loadStation reads the station settings, applying the global flags on top.
func loadStation() (*config.Station, error) {
	v := config.NewViper()
	if simulate {
		v.Set("simulate", true)
	}
	if configPath != "" {
		v.Set("calibration", configPath)
	}
	if unixSocketPath != "" {
		v.Set("socket", unixSocketPath)
	}
	st, err := config.LoadStation(v, stationPath)
	if err != nil {
		return nil, err
	}
	logrus.WithFields(st.LogrusFields()).Debug("station settings loaded")
	return st, nil
}

func loadCalibration(st *config.Station) (*config.Calibration, error) {
	cfg, err := config.LoadCalibration(st.Calibration)
	if err != nil {
		return nil, err
	}
	logrus.WithFields(cfg.LogrusFields()).Info("calibration loaded")
	return cfg, nil
}

// newAPIClient only needs the socket, so a station file that is invalid
// for driving the bench does not keep the remote commands from working.
func newAPIClient() (*client.Client, error) {
	if unixSocketPath != "" {
		return client.NewClient(unixSocketPath), nil
	}
	st, err := loadStation()
	if err != nil {
		var cfgErr *config.Error
		if !errors.As(err, &cfgErr) {
			return nil, err
		}
		logrus.WithError(err).Debug("station settings invalid, using the default socket")
		return client.NewClient(config.NewViper().GetString("socket")), nil
	}
	return client.NewClient(st.Socket), nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func parseProcedures(args []string) []calibration.Procedure {
	ids := make([]calibration.Procedure, 0, len(args))
	for _, a := range args {
		ids = append(ids, calibration.Procedure(strings.TrimSpace(a)))
	}
	return ids
}

// selectProcedures shows the procedures of the standard as a numbered menu
// and asks which to run. "all" or an empty answer selects everything.
func selectProcedures(ctx context.Context, op operator.Channel, standard calibration.Standard, plan []calibration.Procedure) ([]calibration.Procedure, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s procedures:\n", standard)
	for i, id := range plan {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, procedure.Title(id))
	}
	b.WriteString("Select procedures (e.g. 1,3,4 or all):")

	answer, err := op.Prompt(ctx, "IEC "+string(standard), b.String())
	if err != nil {
		return nil, err
	}
	answer = strings.TrimSpace(strings.ToLower(answer))
	if answer == "" || answer == "all" {
		return plan, nil
	}

	var out []calibration.Procedure
	for _, f := range strings.FieldsFunc(answer, func(r rune) bool { return r == ',' || r == ' ' }) {
		n, err := strconv.Atoi(f)
		if err != nil || n < 1 || n > len(plan) {
			return nil, &operator.InputError{Question: "procedure selection", Answer: f, Err: fmt.Errorf("expected 1..%d", len(plan))}
		}
		if id := plan[n-1]; !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out, nil
}

func bold(format string, a ...interface{}) string {
	return color.New(color.Bold).Sprintf(format, a...)
}

func phaseText(p calibration.Phase) string {
	switch p {
	case calibration.PhaseDone:
		return color.New(color.Bold, color.FgGreen).Sprint(p)
	case calibration.PhaseError:
		return color.New(color.Bold, color.FgRed).Sprint(p)
	case calibration.PhaseCancelled:
		return color.New(color.Bold, color.FgYellow).Sprint(p)
	case calibration.PhaseIdle:
		return string(p)
	}
	return color.New(color.Bold, color.FgCyan).Sprint(p)
}
