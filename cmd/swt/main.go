package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"github.com/rexliu/swtedit/pkg/config"
	"github.com/rexliu/swtedit/pkg/logging"
)

func main() {
	logger := logging.New("swt")
	ctx, stop := signal.NotifyContext(logger.WithContext(context.Background()), os.Interrupt, syscall.SIGTERM)

	err := newApp().Run(ctx, os.Args)
	stop()
	if err != nil {
		logger.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

// globals holds the flags shared by every command.
type globals struct {
	profile string
	socket  string
	verbose bool
}

func newApp() *cli.Command {
	g := &globals{}
	return &cli.Command{
		Name:  "swt",
		Usage: "inspect, convert and edit .swt mission scripts",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "profile",
				Usage:       "profile directory",
				Value:       "./_dev_profile",
				Destination: &g.profile,
			},
			&cli.StringFlag{
				Name:        "socket",
				Usage:       "override the daemon socket path",
				Destination: &g.socket,
			},
			&cli.BoolFlag{
				Name:        "verbose",
				Aliases:     []string{"v"},
				Usage:       "log debug output",
				Destination: &g.verbose,
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			level := zerolog.InfoLevel
			if g.verbose {
				level = zerolog.DebugLevel
			}
			logger := zerolog.Ctx(ctx).Level(level)
			return logger.WithContext(ctx), nil
		},
		Commands: []*cli.Command{
			createInitCli(g),
			createDecodeCli(),
			createEncodeCli(),
			createFmtCli(),
			createCheckCli(),
			createTreeCli(),
			createPingCli(g),
			createOpenCli(g),
			createSaveCli(g),
			createSaveAsCli(g),
			createDocCli(g),
			createApplyCli(g),
			createSearchCli(g),
			createWatchCli(g),
			createHistoryCli(g),
			createRestoreCli(g),
			createVCSCli(g),
			createRemoteCli(g),
			createDiagCli(g),
		},
	}
}

func createInitCli(g *globals) *cli.Command {
	name := "dev"
	force := false
	action := func(ctx context.Context, cmd *cli.Command) error {
		if err := os.MkdirAll(g.profile, 0o700); err != nil {
			return err
		}
		configPath := filepath.Join(g.profile, config.FileName)
		if _, err := os.Stat(configPath); err == nil && !force {
			return fmt.Errorf("config already exists at %s (use --force to overwrite)", configPath)
		}
		cfg := config.DefaultProfile(name)
		if err := config.Save(configPath, cfg); err != nil {
			return err
		}
		fmt.Fprintf(cmd.Root().Writer, "initialized profile %s at %s\n", cfg.ProfileName, g.profile)
		return nil
	}
	return &cli.Command{
		Name:  "init",
		Usage: "initialize a local profile (writes config.toml)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "name",
				Usage:       "profile name",
				Value:       name,
				Destination: &name,
			},
			&cli.BoolFlag{
				Name:        "force",
				Usage:       "overwrite an existing config",
				Destination: &force,
			},
		},
		Action: action,
	}
}

func createDiagCli(g *globals) *cli.Command {
	action := func(ctx context.Context, cmd *cli.Command) error {
		cfg, err := config.LoadProfile(g.profile)
		if err != nil {
			return err
		}
		w := cmd.Root().Writer
		fmt.Fprintf(w, "Profile: %s\n", cfg.ProfileName)
		fmt.Fprintf(w, "Config: %s\n", filepath.Join(g.profile, config.FileName))
		fmt.Fprintf(w, "IDs: %s (prefix %q), scan %s\n", cfg.Editor.IDStrategy, cfg.Editor.IDPrefix, cfg.Editor.ScanMode)
		fmt.Fprintf(w, "DB Path: %s (enabled=%t)\n", config.ResolvePath(g.profile, cfg.Storage.DBPath), cfg.Storage.Enabled)
		fmt.Fprintf(w, "Socket: %s\n", config.ResolvePath(g.profile, cfg.IPC.SocketPath))
		if cfg.Logging.FilePath != "" {
			fmt.Fprintf(w, "Log File: %s\n", config.ResolvePath(g.profile, cfg.Logging.FilePath))
		}
		fmt.Fprintf(w, "VCS: %s on %s (enabled=%t, autoCommit=%t)\n",
			config.ResolvePath(g.profile, cfg.VCS.Path), cfg.VCS.Branch, cfg.VCS.Enabled, cfg.VCS.AutoCommit)
		if cfg.VCS.Remote.URL != "" {
			fmt.Fprintf(w, "Remote: %s %s\n", cfg.VCS.Remote.Name, cfg.VCS.Remote.URL)
		}
		return nil
	}
	return &cli.Command{
		Name:   "diag",
		Usage:  "print profile configuration paths",
		Action: action,
	}
}

func createRemoteCli(g *globals) *cli.Command {
	url := ""
	setAction := func(ctx context.Context, cmd *cli.Command) error {
		cfg, err := config.LoadProfile(g.profile)
		if err != nil {
			return err
		}
		cfg.VCS.Remote.URL = url
		if err := config.Save(filepath.Join(g.profile, config.FileName), cfg); err != nil {
			return err
		}
		fmt.Fprintf(cmd.Root().Writer, "remote set to %s\n", url)
		return nil
	}
	showAction := func(ctx context.Context, cmd *cli.Command) error {
		cfg, err := config.LoadProfile(g.profile)
		if err != nil {
			return err
		}
		if cfg.VCS.Remote.URL == "" {
			fmt.Fprintln(cmd.Root().Writer, "remote not configured")
			return nil
		}
		fmt.Fprintf(cmd.Root().Writer, "remote %s: %s\n", cfg.VCS.Remote.Name, cfg.VCS.Remote.URL)
		return nil
	}
	return &cli.Command{
		Name:  "remote",
		Usage: "manage the git remote in config.toml",
		Commands: []*cli.Command{
			{
				Name:  "set",
				Usage: "set the remote URL",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:        "url",
						Required:    true,
						Destination: &url,
					},
				},
				Action: setAction,
			},
			{
				Name:   "show",
				Usage:  "print the remote URL",
				Action: showAction,
			},
		},
	}
}

// readInput reads the file named by the first argument, or stdin when it is
// missing or "-".
func readInput(cmd *cli.Command) ([]byte, string, error) {
	name := cmd.Args().First()
	if name == "" || name == "-" {
		data, err := io.ReadAll(cmd.Root().Reader)
		return data, "stdin", err
	}
	data, err := os.ReadFile(name)
	return data, name, err
}

func printJSON(w io.Writer, v any) error {
	if raw, ok := v.(json.RawMessage); ok {
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return err
		}
		v = decoded
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

func resolveSocketPath(g *globals) (string, error) {
	if g.socket != "" {
		return g.socket, nil
	}
	cfg, err := config.LoadProfile(g.profile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("config not found in %s (run 'swt --profile %s init')", g.profile, g.profile)
		}
		return "", fmt.Errorf("load config: %w", err)
	}
	return config.ResolvePath(g.profile, cfg.IPC.SocketPath), nil
}
