package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/rexliu/swtedit/pkg/config"
	"github.com/rexliu/swtedit/pkg/ipc"
	"github.com/rexliu/swtedit/pkg/logging"
)

// swt-bridge relays newline-delimited JSON requests from stdin to the daemon
// and writes each response back as one line on stdout. Editor plugins that
// cannot speak the framed socket protocol talk to the daemon through it.
func main() {
	profile := flag.String("profile", "./_dev_profile", "Path to profile directory")
	socket := flag.String("socket", "", "Override IPC socket path (optional)")
	flag.Parse()

	logger := logging.New("swt-bridge")

	socketPath := *socket
	if socketPath == "" {
		cfg, err := config.LoadProfile(*profile)
		if err != nil {
			logger.Error().Err(err).Msg("load config")
			os.Exit(1)
		}
		socketPath = config.ResolvePath(*profile, cfg.IPC.SocketPath)
	}

	client, err := ipc.Dial(context.Background(), socketPath)
	if err != nil {
		logger.Error().Err(err).Msg("connect to daemon")
		os.Exit(1)
	}
	defer client.Close()

	if err := relay(os.Stdin, os.Stdout, client, logger); err != nil {
		logger.Error().Err(err).Msg("bridge exiting")
		os.Exit(1)
	}
}

// forwarder is the part of ipc.Client the relay needs.
type forwarder interface {
	Forward(req ipc.Request) ([]byte, error)
}

// relay copies requests from r to the daemon until r is exhausted. A line
// that is not a request gets an INVALID_REQUEST reply; a broken connection
// ends the relay.
func relay(r io.Reader, w io.Writer, client forwarder, logger zerolog.Logger) error {
	reader := bufio.NewReader(r)
	writer := bufio.NewWriter(w)
	defer writer.Flush()

	for {
		line, err := reader.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			if werr := relayLine(line, writer, client, logger); werr != nil {
				return werr
			}
			if ferr := writer.Flush(); ferr != nil {
				return ferr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func relayLine(line []byte, w io.Writer, client forwarder, logger zerolog.Logger) error {
	var req ipc.Request
	if err := json.Unmarshal(line, &req); err != nil || req.Type == "" {
		logger.Warn().Msg("invalid message")
		return writeLine(w, ipc.Response{
			ID:    req.ID,
			Error: ipc.Errorf(ipc.CodeInvalidRequest, "invalid message", nil),
		})
	}
	if req.Type == "subscribe_events" {
		return writeLine(w, ipc.Response{
			ID:    req.ID,
			Error: ipc.Errorf(ipc.CodeInvalidRequest, "streams are not relayed", nil),
		})
	}
	logger.Debug().Str("method", req.Type).Str("id", req.ID).Msg("forwarding")
	payload, err := client.Forward(req)
	if err != nil {
		return fmt.Errorf("forward %s: %w", req.Type, err)
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	_, err = w.Write([]byte{'\n'})
	return err
}

func writeLine(w io.Writer, resp ipc.Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	_, err = w.Write(append(data, '\n'))
	return err
}
