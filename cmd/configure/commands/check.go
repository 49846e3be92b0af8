package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/benvon/mentra/internal/database"
	"github.com/benvon/mentra/internal/models"
)

// NewCheckCmd creates the check command
func NewCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check database connectivity and stored configuration",
		Long:  "Ping the database and validate the stored CORS origins and the rate limit of each scope.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDatabase(cmd.Context(), func(db *database.DB) error {
				ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
				defer cancel()
				if err := db.HealthCheck(ctx); err != nil {
					return fmt.Errorf("database health check: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Database: ok")
				return runCheck(ctx, cmd.OutOrStdout(),
					database.NewOriginRepository(db),
					database.NewRateLimitRepository(db),
				)
			})
		},
	}
}

// runCheck reports every problem it finds and fails if there was any.
func runCheck(ctx context.Context, w io.Writer, origins database.OriginRepositoryInterface, rl database.RateLimitRepositoryInterface) error {
	problems := 0

	stored, err := origins.List(ctx)
	if err != nil {
		return fmt.Errorf("list origins: %w", err)
	}
	if len(stored) == 0 {
		fmt.Fprintln(w, "CORS: no origins stored (seeded from FRONTEND_URL and EXTENSION_ORIGINS)")
	}
	for _, o := range stored {
		parsed, err := models.ParseOrigin(o.Origin)
		switch {
		case err != nil:
			fmt.Fprintf(w, "CORS: %v\n", err)
			problems++
		case parsed.Kind != o.Kind:
			fmt.Fprintf(w, "CORS: %s is stored as %s, want %s\n", o.Origin, o.Kind, parsed.Kind)
			problems++
		default:
			fmt.Fprintf(w, "CORS: %s ok\n", o.Origin)
		}
	}

	for _, scope := range models.RateLimitScopes {
		r, err := rl.Get(ctx, scope)
		switch {
		case err != nil:
			return fmt.Errorf("get %s rate limit: %w", scope, err)
		case r == nil:
			fmt.Fprintf(w, "Rate limit %s: not configured (default %s)\n", scope, scope.DefaultRate())
		case validateRate(r.Rate) != nil:
			fmt.Fprintf(w, "Rate limit %s: %v\n", scope, validateRate(r.Rate))
			problems++
		default:
			fmt.Fprintf(w, "Rate limit %s: ok\n", scope)
		}
	}

	if problems > 0 {
		return fmt.Errorf("%d configuration problem(s) found", problems)
	}
	return nil
}
