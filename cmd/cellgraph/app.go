package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/nvandessel/cellgraph/internal/cells"
	"github.com/nvandessel/cellgraph/internal/config"
	"github.com/nvandessel/cellgraph/internal/logging"
	"github.com/nvandessel/cellgraph/internal/store"
	"github.com/nvandessel/cellgraph/internal/visualization"
	"github.com/nvandessel/cellgraph/internal/world"
	"github.com/spf13/cobra"
)

// app carries the effective configuration and the loggers built from it.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	events *logging.EventLog
}

func loadApp(cmd *cobra.Command) (*app, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &app{
		cfg:    cfg,
		logger: logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr()),
	}, nil
}

func (a *app) backend() store.Backend { return store.Backend(a.cfg.Store.Backend) }

func (a *app) storePath(backend store.Backend) (string, error) {
	if a.cfg.Store.Path != "" {
		return a.cfg.Store.Path, nil
	}
	dir, err := store.DefaultDir()
	if err != nil {
		return "", err
	}
	return store.DefaultPath(dir, backend), nil
}

// openStore opens backend at the configured path. Durable stores also get
// a topology event log next to the database when the level asks for one.
func (a *app) openStore(backend store.Backend) (store.Store, error) {
	path, err := a.storePath(backend)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(backend, path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if backend != store.BackendMemory && a.events == nil {
		a.events = logging.NewEventLog(filepath.Dir(path), a.cfg.Logging.Level)
	}
	a.logger.Debug("store opened", "backend", backend, "path", path)
	return st, nil
}

func (a *app) worldOptions() []world.Option {
	return []world.Option{
		world.WithChunkSize(a.cfg.World.ChunkSize),
		world.WithDiagonalWrap(a.cfg.World.AllowDiagonalWrap),
		world.WithForceLoad(a.cfg.World.ForceLoadChunks),
		world.WithLogger(a.logger),
		world.WithEventLog(a.events),
	}
}

func (a *app) close() { a.events.Close() }

// outputFormat reads --format; the global --json flag wins.
func outputFormat(cmd *cobra.Command) (visualization.Format, error) {
	if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
		return visualization.FormatJSON, nil
	}
	name, _ := cmd.Flags().GetString("format")
	return visualization.ParseFormat(name)
}

func render(w io.Writer, topo *cells.Topology, format visualization.Format) error {
	switch format {
	case visualization.FormatDOT:
		_, err := fmt.Fprint(w, visualization.RenderDOT(topo))
		return err
	case visualization.FormatJSON:
		return writeJSON(w, visualization.RenderJSON(topo))
	default:
		return visualization.RenderText(w, topo)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode JSON: %w", err)
	}
	return nil
}
