package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/charlie0129/slmcal/pkg/calibration"
	"github.com/charlie0129/slmcal/pkg/procedure"
)

func bool2Text(b bool) string {
	if b {
		return color.New(color.Bold, color.FgGreen).Sprint("✔")
	}
	return color.New(color.Bold, color.FgRed).Sprint("✘")
}

// NewStatusCommand .
func NewStatusCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "status",
		Short:   "Get the current status of the daemon",
		GroupID: gRemote,
		Long:    `Get the current run, its phase, the procedures left and the pending prompt.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newAPIClient()
			if err != nil {
				return err
			}
			st, err := c.GetStatus(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			}
			printStatus(st)

			notices, err := c.GetNotices(cmd.Context())
			if err != nil {
				return err
			}
			if len(notices) > 0 {
				fmt.Println()
				fmt.Println(bold("Notices:"))
				for _, n := range notices {
					fmt.Printf("  %s\n", n)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the status as JSON")

	return cmd
}

func printStatus(st calibration.Status) {
	fmt.Println(bold("Run:"))
	fmt.Printf("  Standard: IEC %s\n", st.Standard)
	if st.RunID == "" {
		fmt.Printf("  Phase: %s (no run yet)\n", phaseText(st.Phase))
		return
	}
	fmt.Printf("  ID: %s\n", st.RunID)
	fmt.Printf("  Phase: %s\n", phaseText(st.Phase))
	if st.Procedure != "" {
		fmt.Printf("  Procedure: %s\n", procedure.Title(st.Procedure))
	}
	fmt.Printf("  Started: %s\n", humanize.Time(st.StartedAt))
	if !st.FinishedAt.IsZero() {
		fmt.Printf("  Finished: %s\n", humanize.Time(st.FinishedAt))
	}
	fmt.Printf("  Result tables: %d\n", st.Tables)
	if st.LastError != "" {
		fmt.Printf("  Last error: %s\n", color.RedString(st.LastError))
	}

	if len(st.Completed)+len(st.Pending) > 0 {
		fmt.Println()
		fmt.Println(bold("Procedures:"))
		for _, id := range st.Completed {
			fmt.Printf("  %s %s\n", bool2Text(true), procedure.Title(id))
		}
		for _, id := range st.Pending {
			fmt.Printf("  %s %s\n", bool2Text(false), procedure.Title(id))
		}
	}

	if p := st.Prompt; p != nil {
		fmt.Println()
		fmt.Println(bold("Waiting for the operator:"))
		fmt.Printf("  #%d %s (asked %s)\n", p.ID, p.Title, humanize.Time(p.AskedAt))
		fmt.Printf("  %s\n", color.YellowString(p.Text))
	}
}
