package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/charlie0129/slmcal/pkg/client"
	"github.com/charlie0129/slmcal/pkg/events"
	"github.com/charlie0129/slmcal/pkg/report"
)

// NewStartCommand .
func NewStartCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "start [procedure...]",
		Short:   "Start a run on the daemon",
		GroupID: gRemote,
		Long: `Start a run on the daemon.

Without arguments every procedure of the configured standard is run. Prompts of
the run are shown by 'slmcal prompt' and answered with 'slmcal answer'.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newAPIClient()
			if err != nil {
				return err
			}
			plan, err := c.StartRun(cmd.Context(), parseProcedures(args)...)
			if err != nil {
				return err
			}
			fmt.Println("Run started:")
			for i, id := range plan {
				fmt.Printf("  %d. %s\n", i+1, id)
			}
			return nil
		},
	}
}

// NewCancelCommand .
func NewCancelCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "cancel",
		Short:   "Cancel the run in progress",
		GroupID: gRemote,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newAPIClient()
			if err != nil {
				return err
			}
			if err := c.CancelRun(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("Run cancelled. The bench is reset once the current step returns.")
			return nil
		},
	}
}

// NewPromptCommand .
func NewPromptCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "prompt",
		Short:   "Show the question the daemon is waiting on",
		GroupID: gRemote,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newAPIClient()
			if err != nil {
				return err
			}
			p, err := c.GetPrompt(cmd.Context())
			if err != nil {
				return err
			}
			if p == nil {
				fmt.Println("No prompt is pending.")
				return nil
			}
			if p.Title != "" {
				fmt.Println(bold("%s", p.Title))
			}
			fmt.Println(p.Text)
			fmt.Println()
			if p.Acknowledge {
				fmt.Printf("Acknowledge with 'slmcal answer --id %d'\n", p.ID)
			} else {
				fmt.Printf("Answer with 'slmcal answer --id %d <answer>'\n", p.ID)
			}
			return nil
		},
	}
}

// NewAnswerCommand .
func NewAnswerCommand() *cobra.Command {
	var id int64

	cmd := &cobra.Command{
		Use:     "answer [answer]",
		Short:   "Answer the pending prompt",
		GroupID: gRemote,
		Long: `Answer the pending prompt.

Pass --id to make sure the answer goes to the prompt that was shown; an answer to
a prompt that is no longer pending is rejected. Acknowledgements need no answer.`,
		Example: `  slmcal answer --id 3 94.2
  slmcal answer --id 4`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newAPIClient()
			if err != nil {
				return err
			}
			answer := strings.Join(args, "")
			if err := c.Answer(cmd.Context(), id, answer); err != nil {
				if errors.Is(err, client.ErrNotFound) {
					return fmt.Errorf("no prompt is pending")
				}
				return err
			}
			fmt.Println("Answered.")
			return nil
		},
	}

	cmd.Flags().Int64Var(&id, "id", 0, "prompt id, 0 answers whatever is pending")

	return cmd
}

// NewResultsCommand .
func NewResultsCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "results",
		Short:   "Show the result tables of the last run",
		GroupID: gRemote,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newAPIClient()
			if err != nil {
				return err
			}
			tables, err := c.GetResults(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(tables)
			}
			if len(tables) == 0 {
				fmt.Println("No results yet.")
				return nil
			}
			return report.New(os.Stdout).Render(tables)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the tables as JSON")

	return cmd
}

// NewWatchCommand .
func NewWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "watch",
		Short:   "Follow the events of the daemon",
		GroupID: gRemote,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newAPIClient()
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			ch, err := c.SubscribeEvents(ctx)
			if err != nil {
				return err
			}
			for ev := range ch {
				fmt.Println(describeEvent(ev))
			}
			if ctx.Err() == nil {
				return fmt.Errorf("event stream closed by daemon")
			}
			return nil
		},
	}
}

var (
	eventNameColor = color.New(color.FgCyan)
	promptColor    = color.New(color.Bold, color.FgYellow)
)

func describeEvent(ev events.Event) string {
	name := eventNameColor.Sprintf("%-16s", ev.Name)
	switch ev.Name {
	case events.ProcedurePhase:
		p, err := events.DecodeAs[events.ProcedurePhaseEvent](ev)
		if err != nil {
			break
		}
		s := fmt.Sprintf("%s %s: %s -> %s", name, p.Procedure, p.From, p.To)
		if p.Message != "" {
			s += " (" + p.Message + ")"
		}
		return s
	case events.OperatorPrompt:
		p, err := events.DecodeAs[events.OperatorPromptEvent](ev)
		if err != nil {
			break
		}
		return fmt.Sprintf("%s #%d %s", name, p.ID, promptColor.Sprint(p.Text))
	case events.OperatorReply:
		p, err := events.DecodeAs[events.OperatorReplyEvent](ev)
		if err != nil {
			break
		}
		return fmt.Sprintf("%s #%d %q", name, p.ID, p.Answer)
	case events.ResultTable:
		var t struct {
			Title string `json:"title"`
		}
		if err := json.Unmarshal(ev.Data, &t); err != nil {
			break
		}
		return fmt.Sprintf("%s %s", name, t.Title)
	case events.OperatorNotice, events.RunStarted, events.RunFinished:
		p, err := events.DecodeAs[events.NoticeEvent](ev)
		if err != nil {
			break
		}
		return fmt.Sprintf("%s %s", name, p.Message)
	}
	return fmt.Sprintf("%s %s", name, string(ev.Data))
}
