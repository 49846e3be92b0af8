package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/benvon/mentra/internal/companion"
	"github.com/benvon/mentra/internal/models"
)

func newAllowCmd(g *Globals) *cobra.Command {
	var duration string
	cmd := &cobra.Command{
		Use:   "allow DOMAIN",
		Short: "Allow a blocked site for a while",
		Long:  "Grants an override rule: --for 10min, session (12 hours) or tomorrow (until midnight).",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withChannel(cmd.Context(), g, func(ch companion.Channel) error {
				return runAllow(cmd.Context(), cmd.OutOrStdout(), ch, args[0], models.OverrideKind(duration))
			})
		},
	}
	cmd.Flags().StringVar(&duration, "for", string(models.OverrideTenMinutes), "Override length: 10min, session or tomorrow")
	return cmd
}

func runAllow(ctx context.Context, w io.Writer, ch companion.Channel, domain string, kind models.OverrideKind) error {
	resp, err := ch.Send(ctx, companion.AddOverrideRuleRequest{Domain: domain, Duration: kind})
	if err != nil {
		return err
	}
	rule := resp.(companion.AddOverrideRuleResponse).Rule
	fmt.Fprintf(w, "%s allowed until %s\n", rule.Domain, rule.ExpiresAt.Local().Format("15:04 Jan 2"))
	return nil
}

func newReflectionsCmd(g *Globals) *cobra.Command {
	var limit int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "reflections",
		Short: "List recent reflections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withChannel(cmd.Context(), g, func(ch companion.Channel) error {
				return runReflections(cmd.Context(), cmd.OutOrStdout(), ch, limit, asJSON)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of reflections")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func runReflections(ctx context.Context, w io.Writer, ch companion.Channel, limit int, asJSON bool) error {
	resp, err := ch.Send(ctx, companion.GetReflectionsRequest{Limit: limit})
	if err != nil {
		return err
	}
	list := resp.(companion.ReflectionsResponse).Reflections
	if asJSON {
		return printJSON(w, list)
	}
	if len(list) == 0 {
		fmt.Fprintln(w, "No reflections yet.")
		return nil
	}
	for _, r := range list {
		fmt.Fprintf(w, "%s  %-16s %s\n", r.Timestamp.Local().Format("2006-01-02 15:04"), r.Domain, r.Text())
		if r.AIResponse != "" {
			fmt.Fprintf(w, "%18s %s\n", "", r.AIResponse)
		}
	}
	return nil
}

func newStatsCmd(g *Globals) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show focus stats and today's counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withChannel(cmd.Context(), g, func(ch companion.Channel) error {
				return runStats(cmd.Context(), cmd.OutOrStdout(), ch)
			})
		},
	}
}

func runStats(ctx context.Context, w io.Writer, ch companion.Channel) error {
	resp, err := ch.Send(ctx, companion.GetStatsRequest{})
	if err != nil {
		return err
	}
	s := resp.(companion.StatsResponse)
	fmt.Fprintf(w, "Today (%s):\n", s.Today.Date)
	fmt.Fprintf(w, "  Focus minutes: %d\n", s.Today.FocusMinutes)
	fmt.Fprintf(w, "  Distractions:  %d\n", s.Today.DistractionCount)
	fmt.Fprintf(w, "  Reflections:   %d\n", s.Today.ReflectionCount)
	if s.Stats == nil {
		fmt.Fprintln(w, "No synced totals yet.")
		return nil
	}
	fmt.Fprintln(w, "Totals:")
	fmt.Fprintf(w, "  Focus minutes: %d\n", s.Stats.FocusTime)
	fmt.Fprintf(w, "  Distractions:  %d\n", s.Stats.Distractions)
	fmt.Fprintf(w, "  Streak:        %d days\n", s.Stats.Streak)
	fmt.Fprintf(w, "  Productivity:  %.2f\n", s.Stats.Productivity)
	return nil
}

func newSettingsCmd(g *Globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change settings",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Print the current settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withChannel(cmd.Context(), g, func(ch companion.Channel) error {
				resp, err := ch.Send(cmd.Context(), companion.GetSettingsRequest{})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), resp)
			})
		},
	})
	cmd.AddCommand(newSettingsSetCmd(g))
	return cmd
}

func newSettingsSetCmd(g *Globals) *cobra.Command {
	var (
		blocked       string
		model         string
		notifications bool
		cloudSync     bool
	)
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change settings; only the given flags are updated",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var u models.SettingsUpdate
			flags := cmd.Flags()
			if flags.Changed("blocked") {
				sites := splitList(blocked)
				u.BlockedSites = &sites
			}
			if flags.Changed("model") {
				u.AIModel = &model
			}
			if flags.Changed("notifications") {
				u.Notifications = &notifications
			}
			if flags.Changed("cloud-sync") {
				u.CloudSync = &cloudSync
			}
			if u == (models.SettingsUpdate{}) {
				return fmt.Errorf("nothing to update; pass at least one flag")
			}
			return withChannel(cmd.Context(), g, func(ch companion.Channel) error {
				resp, err := ch.Send(cmd.Context(), companion.UpdateSettingsRequest{Settings: u})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), resp)
			})
		},
	}
	cmd.Flags().StringVar(&blocked, "blocked", "", "Comma-separated blocked sites (replaces the list)")
	cmd.Flags().StringVar(&model, "model", "", "AI model name")
	cmd.Flags().BoolVar(&notifications, "notifications", true, "Show notifications")
	cmd.Flags().BoolVar(&cloudSync, "cloud-sync", false, "Sync reflections to the cloud")
	return cmd
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func newSendCmd(g *Globals) *cobra.Command {
	return &cobra.Command{
		Use:   "send KIND [JSON]",
		Short: "Send a raw message and print the reply",
		Long: "Sends one tagged message, e.g. `mentra send get-stats` or " +
			"`mentra send update-stats '{\"focusTime\":25}'`. Kinds: " + kindList() + ".",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			env := companion.Envelope{Type: companion.Kind(args[0])}
			if len(args) == 2 {
				env.Payload = json.RawMessage(args[1])
			}
			req, err := companion.DecodeRequest(env)
			if err != nil {
				return err
			}
			return withChannel(cmd.Context(), g, func(ch companion.Channel) error {
				return runSend(cmd.Context(), cmd.OutOrStdout(), ch, req)
			})
		},
	}
}

func runSend(ctx context.Context, w io.Writer, ch companion.Channel, req companion.Request) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	resp, err := ch.Send(ctx, req)
	if err != nil {
		return err
	}
	return printJSON(w, resp)
}

func kindList() string {
	kinds := companion.Kinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}
