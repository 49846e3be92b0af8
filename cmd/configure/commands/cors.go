package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/benvon/mentra/internal/database"
	"github.com/benvon/mentra/internal/models"
)

const corsSeedHint = "The server seeds them from FRONTEND_URL and EXTENSION_ORIGINS on first start."

// NewCorsCmd creates the cors configuration command with list, add and remove subcommands.
func NewCorsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cors",
		Short: "Manage CORS allowed origins",
		Long: "List, add or remove the origins allowed to call the API from a browser: " +
			"the dashboard (https, or http on localhost) and the browser extension " +
			"(chrome-extension://<id> or moz-extension://<uuid>). Stored in database.",
	}
	cmd.AddCommand(newCorsListCmd())
	cmd.AddCommand(newCorsAddCmd())
	cmd.AddCommand(newCorsRemoveCmd())
	return cmd
}

func newCorsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List allowed origins",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDatabase(cmd.Context(), func(db *database.DB) error {
				return runCorsList(cmd.Context(), cmd.OutOrStdout(), database.NewOriginRepository(db))
			})
		},
	}
}

func newCorsAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <origin>...",
		Short: "Allow one or more origins",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOrigins(args); err != nil {
				return err
			}
			return withDatabase(cmd.Context(), func(db *database.DB) error {
				return runCorsAdd(cmd.Context(), cmd.OutOrStdout(), database.NewOriginRepository(db), args)
			})
		},
	}
}

func newCorsRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <origin>",
		Short: "Stop allowing an origin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(cmd.Context(), func(db *database.DB) error {
				return runCorsRemove(cmd.Context(), cmd.OutOrStdout(), database.NewOriginRepository(db), args[0])
			})
		},
	}
}

func runCorsList(ctx context.Context, w io.Writer, repo database.OriginRepositoryInterface) error {
	origins, err := repo.List(ctx)
	if err != nil {
		return fmt.Errorf("list origins: %w", err)
	}
	if len(origins) == 0 {
		fmt.Fprintln(w, "No allowed origins in database. "+corsSeedHint)
		return nil
	}
	fmt.Fprintln(w, "Allowed origins:")
	for _, o := range origins {
		fmt.Fprintf(w, "  %-9s %s\n", o.Kind, o.Origin)
	}
	return nil
}

func runCorsAdd(ctx context.Context, w io.Writer, repo database.OriginRepositoryInterface, raw []string) error {
	for _, r := range raw {
		o, err := repo.Add(ctx, r)
		if err != nil {
			return fmt.Errorf("add origin: %w", err)
		}
		fmt.Fprintf(w, "Allowed %s origin %s\n", o.Kind, o.Origin)
	}
	return nil
}

func runCorsRemove(ctx context.Context, w io.Writer, repo database.OriginRepositoryInterface, origin string) error {
	if err := repo.Remove(ctx, origin); err != nil {
		return fmt.Errorf("remove origin %q: %w", origin, err)
	}
	fmt.Fprintf(w, "Removed origin %s\n", origin)
	return nil
}

// validateOrigins checks every argument before anything is written.
func validateOrigins(raw []string) error {
	for _, r := range raw {
		if _, err := models.ParseOrigin(r); err != nil {
			return err
		}
	}
	return nil
}
