package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/rexliu/swtedit/pkg/config"
	"github.com/rexliu/swtedit/pkg/core"
	"github.com/rexliu/swtedit/pkg/ipc"
	"github.com/rexliu/swtedit/pkg/logging"
	"github.com/rexliu/swtedit/pkg/storage/sqlite"
	"github.com/rexliu/swtedit/pkg/swt"
	gitvcs "github.com/rexliu/swtedit/pkg/vcs/git"
	"github.com/rexliu/swtedit/pkg/workspace"
)

func main() {
	profile := flag.String("profile", "./_dev_profile", "Path to profile directory")
	socket := flag.String("socket", "", "Override IPC socket path (optional)")
	flag.Parse()

	logger := logging.New("swtd")
	logger.Info().Str("profile", *profile).Msg("starting daemon")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *profile, *socket, logger); err != nil {
		logger.Error().Err(err).Msg("fatal error")
		os.Exit(1)
	}
}

type daemon struct {
	cfg        *config.ProfileConfig
	profileDir string
	session    *workspace.Session
	store      *sqlite.Store
	repo       *gitvcs.FilesystemRepo
	eventHub   *eventHub
	logger     zerolog.Logger
}

func run(ctx context.Context, profileDir, socketOverride string, logger zerolog.Logger) error {
	if err := os.MkdirAll(profileDir, 0o700); err != nil {
		return err
	}
	cfg, err := config.LoadProfile(profileDir)
	if errors.Is(err, os.ErrNotExist) {
		logger.Warn().Msg("no config.toml in profile, using defaults")
		cfg = config.DefaultProfile("default")
	} else if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	cfg.Logging.FilePath = config.ResolvePath(profileDir, cfg.Logging.FilePath)
	logger, closer, err := logging.Configure(logger, "swtd", cfg.Logging)
	if err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer closer.Close()

	d, err := newDaemon(ctx, cfg, profileDir, logger)
	if err != nil {
		return err
	}
	defer d.close()

	socketPath := socketOverride
	if socketPath == "" {
		socketPath = config.ResolvePath(profileDir, cfg.IPC.SocketPath)
	}
	if err := cleanupSocket(socketPath); err != nil {
		return err
	}

	srv := ipc.NewServer(logger)
	d.registerHandlers(srv)

	if err := srv.Start(ctx, socketPath); err != nil {
		return fmt.Errorf("start ipc: %w", err)
	}
	defer func() {
		srv.Stop()
		cleanupSocket(socketPath)
	}()

	logger.Info().Str("socket", socketPath).Msg("daemon ready")

	<-ctx.Done()
	logger.Info().Msg("shutting down")
	return nil
}

func newDaemon(ctx context.Context, cfg *config.ProfileConfig, profileDir string, logger zerolog.Logger) (*daemon, error) {
	ids, err := core.NewIDGenerator(cfg.Editor.IDStrategy, cfg.Editor.IDPrefix)
	if err != nil {
		return nil, err
	}
	scan, ok := swt.ParseScanMode(cfg.Editor.ScanMode)
	if !ok {
		return nil, fmt.Errorf("unknown scan mode %q", cfg.Editor.ScanMode)
	}
	d := &daemon{
		cfg:        cfg,
		profileDir: profileDir,
		eventHub:   newEventHub(logger),
		logger:     logger,
	}
	opts := workspace.Options{
		IDs:     ids,
		Scan:    scan,
		Encoder: &swt.Encoder{Indent: cfg.Editor.Indent, Header: cfg.Editor.XMLHeader},
		Logger:  logger,
	}

	if cfg.Storage.Enabled {
		store, err := sqlite.Open(config.ResolvePath(profileDir, cfg.Storage.DBPath))
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		if err := store.Init(ctx, sqlite.Options{JournalMode: cfg.Storage.JournalMode, Synchronous: cfg.Storage.Synchronous}); err != nil {
			store.Close()
			return nil, fmt.Errorf("init sqlite: %w", err)
		}
		d.store = store
		opts.Store = store
	}

	if cfg.VCS.Enabled {
		repo := &gitvcs.FilesystemRepo{
			Path:        config.ResolvePath(profileDir, cfg.VCS.Path),
			Branch:      cfg.VCS.Branch,
			RemoteName:  cfg.VCS.Remote.Name,
			RemoteURL:   cfg.VCS.Remote.URL,
			AuthorName:  cfg.VCS.AuthorName,
			AuthorEmail: cfg.VCS.AuthorEmail,
		}
		if err := repo.Init(ctx); err != nil {
			logger.Warn().Err(err).Msg("git repo unavailable")
		} else {
			d.repo = repo
			if cfg.VCS.AutoCommit {
				opts.Repo = repo
			}
		}
	}

	d.session = workspace.New(opts)
	if err := d.restoreSnapshot(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn().Err(err).Msg("restore snapshot failed")
	}
	return d, nil
}

func (d *daemon) close() {
	if d.store != nil {
		d.store.Close()
	}
}

func cleanupSocket(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err == nil {
		if err := os.Remove(path); err != nil {
			return err
		}
	}
	return nil
}

func pingHandler(logger zerolog.Logger) ipc.HandlerFunc {
	return func(ctx context.Context, params json.RawMessage) (any, *ipc.Error) {
		_ = ctx
		_ = params
		now := time.Now().UnixMilli()
		logger.Debug().Int64("now", now).Msg("received ping")
		return map[string]any{"now": now}, nil
	}
}
