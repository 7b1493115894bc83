package ipc

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte(`{"type":"ping"}`)))
	require.NoError(t, WriteFrame(&buf, nil))

	assert.Equal(t, uint32(15), binary.LittleEndian.Uint32(buf.Bytes()[:4]))

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, `{"type":"ping"}`, string(got))
	got, err = ReadFrame(&buf)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFrameTooLarge(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(MaxFrameSize+1)))
	_, err := ReadFrame(&buf)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func startServer(t *testing.T) (*Server, string) {
	t.Helper()
	srv := NewServer(zerolog.Nop())
	srv.Register("echo", func(ctx context.Context, params json.RawMessage) (any, *Error) {
		var in map[string]string
		if err := json.Unmarshal(params, &in); err != nil {
			return nil, Errorf(CodeInvalidRequest, err.Error(), nil)
		}
		return in, nil
	})
	srv.Register("fail", func(ctx context.Context, params json.RawMessage) (any, *Error) {
		return nil, Errorf(CodeNoDocument, "no document open", nil)
	})
	srv.RegisterStream("count", func(ctx context.Context, params json.RawMessage, send SendFunc) *Error {
		for i := 1; i <= 3; i++ {
			if err := send("tick", map[string]int{"n": i}); err != nil {
				return nil
			}
		}
		<-ctx.Done()
		return nil
	})

	socket := filepath.Join(t.TempDir(), "ipc.sock")
	require.NoError(t, srv.Start(context.Background(), socket))
	t.Cleanup(func() { srv.Stop() })
	return srv, socket
}

func TestServerCall(t *testing.T) {
	_, socket := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := Dial(ctx, socket)
	require.NoError(t, err)
	defer c.Close()

	var out map[string]string
	require.NoError(t, c.Call(ctx, "echo", map[string]string{"a": "b"}, &out))
	assert.Equal(t, map[string]string{"a": "b"}, out)

	err = c.Call(ctx, "fail", nil, nil)
	var rpcErr *Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, CodeNoDocument, rpcErr.Code)

	err = c.Call(ctx, "missing", nil, nil)
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, CodeInvalidRequest, rpcErr.Code)
	assert.Equal(t, "missing", rpcErr.Details["method"])

	// The connection is still usable after errors.
	require.NoError(t, c.Call(ctx, "echo", map[string]string{}, &out))
}

func TestServerStream(t *testing.T) {
	_, socket := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := Dial(ctx, socket)
	require.NoError(t, err)
	defer c.Close()

	var got []int
	done := errors.New("done")
	err = c.Subscribe(ctx, "count", nil, func(resp Response) error {
		assert.Equal(t, "tick", resp.Event)
		var v map[string]int
		require.NoError(t, json.Unmarshal(resp.Result, &v))
		got = append(got, v["n"])
		if len(got) == 3 {
			return done
		}
		return nil
	})
	assert.ErrorIs(t, err, done)
	assert.Equal(t, []int{1, 2, 3}, got)
}

func TestStopEndsStreams(t *testing.T) {
	srv, socket := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := Dial(ctx, socket)
	require.NoError(t, err)
	defer c.Close()

	seen := 0
	err = c.Subscribe(ctx, "count", nil, func(Response) error {
		seen++
		if seen == 3 {
			require.NoError(t, srv.Stop())
		}
		return nil
	})
	require.Error(t, err)
	assert.NoError(t, ctx.Err(), "stream should end before the test deadline")
}
