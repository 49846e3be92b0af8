package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/benvon/mentra/internal/database"
)

// NewListCmd creates the list command
func NewListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all database-stored configuration",
		Long:  "Print the allowed origins and per-scope rate limits the server will load.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDatabase(cmd.Context(), func(db *database.DB) error {
				return runList(cmd.Context(), cmd.OutOrStdout(),
					database.NewOriginRepository(db),
					database.NewRateLimitRepository(db),
				)
			})
		},
	}
}

func runList(ctx context.Context, w io.Writer, origins database.OriginRepositoryInterface, rl database.RateLimitRepositoryInterface) error {
	if err := runCorsList(ctx, w, origins); err != nil {
		return err
	}
	fmt.Fprintln(w)
	return runRatelimitList(ctx, w, rl)
}
