package commands

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/ulule/limiter/v3"

	"github.com/benvon/mentra/internal/database"
	"github.com/benvon/mentra/internal/models"
)

// NewRatelimitCmd creates the ratelimit configuration command with list and set subcommands.
func NewRatelimitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ratelimit",
		Short: "Manage rate limit configuration",
		Long: "List or update the per-client request budget of each scope: api for " +
			"reflections, stats and settings, ai for the /ai routes. Rates look like " +
			"10-S or 100-M. Stored in database.",
	}
	cmd.AddCommand(newRatelimitListCmd())
	cmd.AddCommand(newRatelimitSetCmd())
	return cmd
}

func newRatelimitListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the rate limit of every scope",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDatabase(cmd.Context(), func(db *database.DB) error {
				return runRatelimitList(cmd.Context(), cmd.OutOrStdout(), database.NewRateLimitRepository(db))
			})
		},
	}
}

func newRatelimitSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <scope> <rate>",
		Short: "Set the rate limit of a scope",
		Long:  "Update the rate limit of the api or ai scope (e.g. 10-S, 100-M, 1000-H). Stored in database.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, err := models.ParseRateLimitScope(args[0])
			if err != nil {
				return err
			}
			rate := strings.TrimSpace(args[1])
			if err := validateRate(rate); err != nil {
				return err
			}
			return withDatabase(cmd.Context(), func(db *database.DB) error {
				return runRatelimitSet(cmd.Context(), cmd.OutOrStdout(), database.NewRateLimitRepository(db), scope, rate)
			})
		},
	}
}

func runRatelimitList(ctx context.Context, w io.Writer, repo database.RateLimitRepositoryInterface) error {
	fmt.Fprintln(w, "Rate limits:")
	for _, scope := range models.RateLimitScopes {
		stored, err := repo.Get(ctx, scope)
		if err != nil {
			return fmt.Errorf("get %s rate limit: %w", scope, err)
		}
		rate, source := scope.DefaultRate(), "default"
		if stored != nil {
			rate, source = stored.Rate, "stored"
		}
		fmt.Fprintf(w, "  %-3s %s (%s)", scope, rate, source)
		if parsed, err := limiter.NewRateFromFormatted(rate); err == nil {
			fmt.Fprintf(w, ": %d requests per %s\n", parsed.Limit, parsed.Period)
		} else {
			fmt.Fprintf(w, ": invalid (%v), the server uses %s\n", err, scope.DefaultRate())
		}
	}
	return nil
}

func runRatelimitSet(ctx context.Context, w io.Writer, repo database.RateLimitRepositoryInterface, scope models.RateLimitScope, rate string) error {
	if err := repo.Set(ctx, scope, rate); err != nil {
		return fmt.Errorf("set %s rate limit: %w", scope, err)
	}
	fmt.Fprintf(w, "Rate limit for %s set to %s.\n", scope, rate)
	return nil
}

func validateRate(rate string) error {
	if rate == "" {
		return fmt.Errorf("rate is required (e.g. 10-S, 100-M)")
	}
	if _, err := limiter.NewRateFromFormatted(rate); err != nil {
		return fmt.Errorf("invalid rate %q: %w", rate, err)
	}
	return nil
}
