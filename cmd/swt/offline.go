package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"github.com/rexliu/swtedit/pkg/core"
	"github.com/rexliu/swtedit/pkg/swt"
)

func createDecodeCli() *cli.Command {
	scan := "outermost"
	ids := "ulid"
	prefix := "evt_"
	action := func(ctx context.Context, cmd *cli.Command) error {
		data, name, err := readInput(cmd)
		if err != nil {
			return err
		}
		mode, ok := swt.ParseScanMode(scan)
		if !ok {
			return fmt.Errorf("unknown scan mode %q", scan)
		}
		gen, err := core.NewIDGenerator(ids, prefix)
		if err != nil {
			return err
		}
		dec := &swt.Decoder{IDs: gen, Scan: mode}
		m, err := dec.Decode(bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		logWarnings(ctx, name, dec.Warnings)
		return printJSON(cmd.Root().Writer, m)
	}
	return &cli.Command{
		Name:      "decode",
		Usage:     "print the event tree of a mission file as JSON",
		ArgsUsage: "[file]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "scan",
				Usage:       "outermost or all",
				Value:       scan,
				Destination: &scan,
			},
			&cli.StringFlag{
				Name:        "ids",
				Usage:       "id strategy: ulid, uuid or counter",
				Value:       ids,
				Destination: &ids,
			},
			&cli.StringFlag{
				Name:        "id-prefix",
				Usage:       "prefix for generated ids",
				Value:       prefix,
				Destination: &prefix,
			},
		},
		Action: action,
	}
}

func createEncodeCli() *cli.Command {
	indent := swt.DefaultIndent
	header := false
	action := func(ctx context.Context, cmd *cli.Command) error {
		data, name, err := readInput(cmd)
		if err != nil {
			return err
		}
		var m core.Mission
		if err := json.Unmarshal(data, &m); err != nil {
			return fmt.Errorf("%s: invalid mission JSON: %w", name, err)
		}
		enc := &swt.Encoder{Indent: indent, Header: header}
		return enc.Encode(cmd.Root().Writer, m)
	}
	return &cli.Command{
		Name:      "encode",
		Usage:     "write mission XML from an event tree in JSON",
		ArgsUsage: "[file]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "indent",
				Usage:       "indentation unit, empty for a single line",
				Value:       indent,
				Destination: &indent,
			},
			&cli.BoolFlag{
				Name:        "header",
				Usage:       "write an XML declaration",
				Destination: &header,
			},
		},
		Action: action,
	}
}

func createFmtCli() *cli.Command {
	indent := swt.DefaultIndent
	write := false
	action := func(ctx context.Context, cmd *cli.Command) error {
		data, name, err := readInput(cmd)
		if err != nil {
			return err
		}
		out, err := swt.Reformat(string(data), indent)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if write && name != "stdin" {
			zerolog.Ctx(ctx).Debug().Str("file", name).Msg("rewriting")
			return os.WriteFile(name, []byte(out), 0o644)
		}
		_, err = fmt.Fprint(cmd.Root().Writer, out)
		return err
	}
	return &cli.Command{
		Name:      "fmt",
		Usage:     "reindent a mission file without touching its elements",
		ArgsUsage: "[file]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "indent",
				Value:       indent,
				Destination: &indent,
			},
			&cli.BoolFlag{
				Name:        "write",
				Aliases:     []string{"w"},
				Usage:       "write the result back to the file",
				Destination: &write,
			},
		},
		Action: action,
	}
}

func createCheckCli() *cli.Command {
	action := func(ctx context.Context, cmd *cli.Command) error {
		data, name, err := readInput(cmd)
		if err != nil {
			return err
		}
		dec := swt.NewDecoder(core.NewCounter("evt_"))
		first, err := dec.Decode(bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		logWarnings(ctx, name, dec.Warnings)
		out, err := swt.EncodeString(first)
		if err != nil {
			return err
		}
		second, err := swt.DecodeString(out, core.NewCounter("evt_"))
		if err != nil {
			return fmt.Errorf("%s: re-decode: %w", name, err)
		}
		if !reflect.DeepEqual(first, second) {
			return fmt.Errorf("%s: tree changed after encode", name)
		}
		if dups := core.DuplicateIDs(first); len(dups) > 0 {
			return fmt.Errorf("%s: duplicate ids %s", name, strings.Join(dups, ", "))
		}
		fmt.Fprintf(cmd.Root().Writer, "%s: ok, %d events, %d warnings\n", name, core.Count(first), len(dec.Warnings))
		return nil
	}
	return &cli.Command{
		Name:      "check",
		Usage:     "verify a mission file survives decode and encode",
		ArgsUsage: "[file]",
		Action:    action,
	}
}

func createTreeCli() *cli.Command {
	action := func(ctx context.Context, cmd *cli.Command) error {
		data, name, err := readInput(cmd)
		if err != nil {
			return err
		}
		m, err := swt.Decode(bytes.NewReader(data), core.NewCounter("evt_"))
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		printTree(cmd.Root().Writer, m)
		return nil
	}
	return &cli.Command{
		Name:      "tree",
		Usage:     "print an outline of the event tree",
		ArgsUsage: "[file]",
		Action:    action,
	}
}

func printTree(w io.Writer, m core.Mission) {
	core.Walk(m, func(ev core.ScriptEvent, parentID string, depth int) bool {
		line := strings.Repeat("  ", depth) + string(ev.Kind) + " " + ev.Name
		if params := ev.Attributes.Params(); len(params) > 0 {
			line += " (" + strings.Join(params, ", ") + ")"
		}
		fmt.Fprintln(w, line)
		return true
	})
}

func logWarnings(ctx context.Context, name string, warnings []error) {
	logger := zerolog.Ctx(ctx)
	for _, w := range warnings {
		logger.Warn().Str("file", name).Err(w).Msg("decode warning")
	}
}
