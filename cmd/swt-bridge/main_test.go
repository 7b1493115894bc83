package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rexliu/swtedit/pkg/ipc"
)

func decodeLines(t *testing.T, out string) []ipc.Response {
	t.Helper()
	var resps []ipc.Response
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		var resp ipc.Response
		require.NoError(t, json.Unmarshal([]byte(line), &resp))
		resps = append(resps, resp)
	}
	return resps
}

func TestRelay(t *testing.T) {
	srv := ipc.NewServer(zerolog.Nop())
	srv.Register("ping", func(ctx context.Context, params json.RawMessage) (any, *ipc.Error) {
		return map[string]any{"now": 7}, nil
	})
	socket := filepath.Join(t.TempDir(), "swtd.sock")
	require.NoError(t, srv.Start(context.Background(), socket))
	t.Cleanup(func() { srv.Stop() })

	client, err := ipc.Dial(context.Background(), socket)
	require.NoError(t, err)
	defer client.Close()

	in := strings.Join([]string{
		`{"id":"1","type":"ping"}`,
		``,
		`not json`,
		`{"id":"2","type":"nope"}`,
		`{"id":"3","type":"subscribe_events"}`,
		`{"id":"4","type":"ping"}`,
	}, "\n")
	var out bytes.Buffer
	require.NoError(t, relay(strings.NewReader(in), &out, client, zerolog.Nop()))

	resps := decodeLines(t, out.String())
	require.Len(t, resps, 5)
	assert.Equal(t, "1", resps[0].ID)
	assert.True(t, resps[0].OK)
	assert.JSONEq(t, `{"now":7}`, string(resps[0].Result))
	assert.Equal(t, ipc.CodeInvalidRequest, resps[1].Error.Code)
	assert.Equal(t, "2", resps[2].ID)
	assert.Equal(t, ipc.CodeInvalidRequest, resps[2].Error.Code)
	assert.Equal(t, "3", resps[3].ID)
	assert.Equal(t, ipc.CodeInvalidRequest, resps[3].Error.Code)
	assert.Equal(t, "4", resps[4].ID)
	assert.True(t, resps[4].OK)
}

type brokenForwarder struct{}

func (brokenForwarder) Forward(ipc.Request) ([]byte, error) {
	return nil, errors.New("connection reset")
}

func TestRelayStopsOnBrokenConnection(t *testing.T) {
	var out bytes.Buffer
	err := relay(strings.NewReader(`{"id":"1","type":"ping"}`+"\n"), &out, brokenForwarder{}, zerolog.Nop())
	assert.ErrorContains(t, err, "connection reset")
	assert.Empty(t, out.String())
}
