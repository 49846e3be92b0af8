package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/benvon/mentra/internal/companion"
	"github.com/benvon/mentra/internal/models"
	"github.com/benvon/mentra/internal/policy"
)

func newSyncCmd(g *Globals) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Refresh settings and questions from the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if g.Daemon {
				return errors.New("sync runs on the daemon at startup; run it without --daemon to sync now")
			}
			e, err := openEnv(cmd.Context(), nil, false)
			if err != nil {
				return err
			}
			defer e.Close()
			res, err := e.agent.Sync(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Synced %d blocked sites (from %s) and %d questions\n", res.Sites, res.Source, res.Questions)
			return nil
		},
	}
}

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired override rules now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := openEnv(cmd.Context(), nil, false)
			if err != nil {
				return err
			}
			defer e.Close()
			n, err := policy.NewSweeper(e.store, e.cfg.SweepInterval, e.log).Sweep(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d expired override rules\n", n)
			return nil
		},
	}
}

func newKeyCmd(g *Globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage the personal AI API key kept in the OS keyring",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set",
		Short: "Store an API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := readKey(g.Accessible)
			if err != nil {
				return err
			}
			return withChannel(cmd.Context(), g, func(ch companion.Channel) error {
				return runKeyUpdate(cmd.Context(), cmd.OutOrStdout(), ch, key)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "delete",
		Short: "Remove the stored API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withChannel(cmd.Context(), g, func(ch companion.Channel) error {
				return runKeyUpdate(cmd.Context(), cmd.OutOrStdout(), ch, "")
			})
		},
	})
	return cmd
}

func readKey(accessible bool) (string, error) {
	var key string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("API key").
				EchoMode(huh.EchoModePassword).
				Value(&key).
				Validate(func(s string) error {
					if s == "" {
						return errors.New("api key cannot be empty")
					}
					return nil
				}),
		),
	).WithTheme(huh.ThemeDracula()).WithAccessible(accessible)
	if err := form.Run(); err != nil {
		return "", fmt.Errorf("reading api key: %w", err)
	}
	return key, nil
}

func runKeyUpdate(ctx context.Context, w io.Writer, ch companion.Channel, key string) error {
	resp, err := ch.Send(ctx, companion.UpdateSettingsRequest{Settings: models.SettingsUpdate{APIKey: &key}})
	if err != nil {
		return err
	}
	if resp.(companion.SettingsResponse).HasAPIKey {
		fmt.Fprintln(w, "API key stored in the OS keyring")
	} else {
		fmt.Fprintln(w, "No API key stored")
	}
	return nil
}
