package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"github.com/rexliu/swtedit/pkg/ipc"
)

const callTimeout = 10 * time.Second

// callDaemon sends one request and prints the result as JSON.
func callDaemon(ctx context.Context, g *globals, cmd *cli.Command, method string, params any) error {
	socketPath, err := resolveSocketPath(g)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	client, err := ipc.Dial(ctx, socketPath)
	if err != nil {
		return err
	}
	defer client.Close()

	zerolog.Ctx(ctx).Debug().Str("method", method).Str("socket", socketPath).Msg("calling daemon")
	resp, err := client.Do(ctx, method, params)
	if err != nil {
		return err
	}
	if len(resp.Result) == 0 {
		return nil
	}
	return printJSON(cmd.Root().Writer, resp.Result)
}

func simpleCommand(g *globals, name, usage, method string) *cli.Command {
	return &cli.Command{
		Name:  name,
		Usage: usage,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return callDaemon(ctx, g, cmd, method, nil)
		},
	}
}

func createPingCli(g *globals) *cli.Command {
	return simpleCommand(g, "ping", "check the daemon is reachable", "ping")
}

func createSaveCli(g *globals) *cli.Command {
	return simpleCommand(g, "save", "write the open document back to its file", "save_file")
}

func createOpenCli(g *globals) *cli.Command {
	return pathCommand(g, "open", "open a mission file in the daemon", "open_file")
}

func createSaveAsCli(g *globals) *cli.Command {
	return pathCommand(g, "save-as", "write the open document to a new file", "save_file_as")
}

// pathCommand sends the absolute form of its single path argument.
func pathCommand(g *globals, name, usage, method string) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "<path>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.Args().First()
			if path == "" {
				return errors.New("path required")
			}
			abs, err := filepath.Abs(path)
			if err != nil {
				return err
			}
			return callDaemon(ctx, g, cmd, method, map[string]string{"path": abs})
		},
	}
}

func createDocCli(g *globals) *cli.Command {
	xml := false
	flat := false
	return &cli.Command{
		Name:  "doc",
		Usage: "print the open document",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "xml",
				Usage:       "print the encoded XML instead of the tree",
				Destination: &xml,
			},
			&cli.BoolFlag{
				Name:        "flat",
				Usage:       "list every event in document order, nested ones included",
				Destination: &flat,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			switch {
			case xml:
				return printEncoded(ctx, g, cmd)
			case flat:
				return callDaemon(ctx, g, cmd, "flatten", nil)
			default:
				return callDaemon(ctx, g, cmd, "get_document", nil)
			}
		},
	}
}

func printEncoded(ctx context.Context, g *globals, cmd *cli.Command) error {
	socketPath, err := resolveSocketPath(g)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	client, err := ipc.Dial(ctx, socketPath)
	if err != nil {
		return err
	}
	defer client.Close()
	var out struct {
		Content string `json:"content"`
	}
	if err := client.Call(ctx, "encode", nil, &out); err != nil {
		return err
	}
	_, err = fmt.Fprint(cmd.Root().Writer, out.Content)
	return err
}

func createApplyCli(g *globals) *cli.Command {
	file := ""
	inline := ""
	action := func(ctx context.Context, cmd *cli.Command) error {
		var data []byte
		var err error
		switch {
		case inline != "":
			data = []byte(inline)
		case file != "":
			data, err = os.ReadFile(file)
		default:
			data, err = io.ReadAll(cmd.Root().Reader)
		}
		if err != nil {
			return err
		}
		params, err := opsPayload(data)
		if err != nil {
			return err
		}
		return callDaemon(ctx, g, cmd, "apply_ops", params)
	}
	return &cli.Command{
		Name:  "apply",
		Usage: "apply edit operations to the open document",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "file",
				Aliases:     []string{"f"},
				Usage:       "read operations from a JSON file",
				Destination: &file,
			},
			&cli.StringFlag{
				Name:        "ops",
				Usage:       "operations as inline JSON",
				Destination: &inline,
			},
		},
		Action: action,
	}
}

// opsPayload accepts either a bare JSON array of operations or an object
// with an "ops" field.
func opsPayload(data []byte) (json.RawMessage, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New("no operations given")
	}
	if data[0] == '[' {
		data = append(append([]byte(`{"ops":`), data...), '}')
	}
	if !json.Valid(data) {
		return nil, errors.New("operations are not valid JSON")
	}
	return json.RawMessage(data), nil
}

func createSearchCli(g *globals) *cli.Command {
	query := ""
	var limit int64 = 50
	return &cli.Command{
		Name:  "search",
		Usage: "find events by name, kind or attribute value",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "query",
				Aliases:     []string{"q"},
				Destination: &query,
			},
			&cli.IntFlag{
				Name:        "limit",
				Value:       limit,
				Destination: &limit,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return callDaemon(ctx, g, cmd, "search", map[string]any{"query": query, "limit": limit})
		},
	}
}

func createHistoryCli(g *globals) *cli.Command {
	var limit int64 = 20
	return &cli.Command{
		Name:  "history",
		Usage: "list saved revisions of the open file",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:        "limit",
				Value:       limit,
				Destination: &limit,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return callDaemon(ctx, g, cmd, "history", map[string]any{"limit": limit})
		},
	}
}

func createRestoreCli(g *globals) *cli.Command {
	return &cli.Command{
		Name:      "restore",
		Usage:     "load a saved revision into the session",
		ArgsUsage: "<revision>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			id := cmd.Args().First()
			if id == "" {
				return errors.New("revision id required")
			}
			return callDaemon(ctx, g, cmd, "restore", map[string]string{"id": id})
		},
	}
}

func createVCSCli(g *globals) *cli.Command {
	return &cli.Command{
		Name:  "vcs",
		Usage: "sync the mission repository with its remote",
		Commands: []*cli.Command{
			simpleCommand(g, "push", "push committed saves", "vcs_push"),
			simpleCommand(g, "pull", "pull and reload the open file", "vcs_pull"),
		},
	}
}

func createWatchCli(g *globals) *cli.Command {
	action := func(ctx context.Context, cmd *cli.Command) error {
		socketPath, err := resolveSocketPath(g)
		if err != nil {
			return err
		}
		client, err := ipc.Dial(ctx, socketPath)
		if err != nil {
			return err
		}
		defer client.Close()

		w := cmd.Root().Writer
		err = client.Subscribe(ctx, "subscribe_events", nil, func(resp ipc.Response) error {
			return printJSON(w, resp.Result)
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	return &cli.Command{
		Name:   "watch",
		Usage:  "print document events as they happen",
		Action: action,
	}
}
