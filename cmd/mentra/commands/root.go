// Package commands implements the mentra companion CLI.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/benvon/mentra/internal/apiclient"
	"github.com/benvon/mentra/internal/companion"
	"github.com/benvon/mentra/internal/config"
	"github.com/benvon/mentra/internal/localstore"
	"github.com/benvon/mentra/internal/logger"
)

// Globals are the persistent flags shared by every command.
type Globals struct {
	// Daemon routes messages to a running daemon instead of an in-process agent.
	Daemon bool
	// Addr overrides the daemon address from MENTRA_LISTEN_ADDR.
	Addr string
	// Accessible uses plain line prompts instead of interactive forms.
	Accessible bool
}

// NewRootCmd builds the mentra command tree.
func NewRootCmd() *cobra.Command {
	g := &Globals{}
	root := &cobra.Command{
		Use:          "mentra",
		Short:        "Mindful browsing companion",
		Long:         "Asks a short reflection question before you open a distracting site, and keeps your reflections on this device.",
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVar(&g.Daemon, "daemon", false, "Send messages to the running daemon")
	root.PersistentFlags().StringVar(&g.Addr, "addr", "", "Daemon address (default $MENTRA_LISTEN_ADDR or "+config.DefaultListenAddr+")")
	root.PersistentFlags().BoolVar(&g.Accessible, "accessible", false, "Use plain prompts instead of interactive forms")

	root.AddCommand(newDaemonCmd(g))
	root.AddCommand(newVisitCmd(g))
	root.AddCommand(newAllowCmd(g))
	root.AddCommand(newReflectionsCmd(g))
	root.AddCommand(newStatsCmd(g))
	root.AddCommand(newSettingsCmd(g))
	root.AddCommand(newKeyCmd(g))
	root.AddCommand(newSendCmd(g))
	root.AddCommand(newSyncCmd(g))
	root.AddCommand(newSweepCmd())
	return root
}

// env is an opened local companion: config, log file, store and agent.
type env struct {
	cfg   *config.CompanionConfig
	log   *zap.Logger
	store *localstore.Store
	agent *companion.Agent
}

func openEnv(ctx context.Context, prompter companion.Prompter, logToStderr bool) (*env, error) {
	cfg, err := config.LoadCompanion()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.NewFileLogger(logger.FileOptions{
		Dir:    filepath.Join(cfg.DataDir, "logs"),
		Debug:  cfg.Debug,
		Stderr: logToStderr,
	})
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	store, err := localstore.Open(cfg.DataDir)
	if err != nil {
		_ = logger.Sync(log)
		return nil, fmt.Errorf("open local store: %w", err)
	}
	agent, err := companion.NewAgent(ctx, companion.Config{
		Store:    store,
		Backend:  apiclient.New(cfg.APIURL),
		Prompter: prompter,
		Secrets:  companion.NewKeyringSecrets(),
		Logger:   log,
	})
	if err != nil {
		_ = store.Close()
		_ = logger.Sync(log)
		return nil, fmt.Errorf("start companion: %w", err)
	}
	return &env{cfg: cfg, log: log, store: store, agent: agent}, nil
}

func (e *env) Close() {
	if err := e.store.Close(); err != nil {
		e.log.Warn("failed_to_close_local_store", zap.Error(err))
	}
	_ = logger.Sync(e.log)
}

// daemonURL resolves the daemon base URL from the flags and config.
func daemonURL(g *Globals) (string, error) {
	addr := g.Addr
	if addr == "" {
		cfg, err := config.LoadCompanion()
		if err != nil {
			return "", fmt.Errorf("load config: %w", err)
		}
		addr = cfg.ListenAddr
	}
	return "http://" + addr, nil
}

// withChannel runs fn against the daemon when --daemon is set, otherwise
// against an in-process agent.
func withChannel(ctx context.Context, g *Globals, fn func(companion.Channel) error) error {
	if g.Daemon {
		url, err := daemonURL(g)
		if err != nil {
			return err
		}
		return fn(companion.NewHTTPChannel(url, nil))
	}
	e, err := openEnv(ctx, nil, false)
	if err != nil {
		return err
	}
	defer e.Close()
	return fn(e.agent)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
