package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/benvon/mentra/internal/companion"
	"github.com/benvon/mentra/internal/policy"
	"github.com/benvon/mentra/internal/ui"
)

func newVisitCmd(g *Globals) *cobra.Command {
	return &cobra.Command{
		Use:   "visit URL",
		Short: "Check a navigation and, for a blocked site, reflect first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVisit(cmd.Context(), cmd.OutOrStdout(), g, args[0])
		},
	}
}

func runVisit(ctx context.Context, w io.Writer, g *Globals, rawURL string) error {
	var nav companion.Navigator
	if g.Daemon {
		url, err := daemonURL(g)
		if err != nil {
			return err
		}
		nav = companion.NewHTTPChannel(url, nil)
	} else {
		e, err := openEnv(ctx, newPrompter(g), false)
		if err != nil {
			return err
		}
		defer e.Close()
		nav = e.agent
	}

	res, err := nav.Navigate(ctx, rawURL)
	if err != nil {
		return err
	}
	printVisit(w, res)
	return nil
}

func printVisit(w io.Writer, res companion.NavigateResult) {
	switch {
	case res.Decision == string(policy.Allow) && res.OverrideEnds != nil:
		fmt.Fprintf(w, "Allowed: %s is unlocked until %s\n", res.Hostname, res.OverrideEnds.Local().Format("15:04 Jan 2"))
	case res.Decision == string(policy.Allow):
		fmt.Fprintf(w, "Allowed: %s\n", res.Hostname)
	case res.Decision == string(policy.AllowWarm):
		fmt.Fprintf(w, "Allowed (warm start, visit %d today): %s\n", res.Count, res.Hostname)
	case res.Proceed:
		fmt.Fprintf(w, "Go ahead, mindfully: %s\n", res.Hostname)
	default:
		fmt.Fprintf(w, "Staying away from %s. Nice.\n", res.Hostname)
	}
}

func newPrompter(g *Globals) companion.Prompter {
	return ui.NewPrompter(os.Stdout, g.Accessible)
}
