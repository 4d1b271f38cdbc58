package transport_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	assert "github.com/stretchr/testify/assert"
	require "github.com/stretchr/testify/require"
	transport "github.com/vxmcp/mcp-host/pkg/mcp/transport"
)

func Test_httpstream_001(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	tr := transport.NewHTTPStream("127.0.0.1", 0)
	srv := httptest.NewServer(tr.Handler())
	t.Cleanup(srv.Close)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_, payload, err := tr.Read(ctx)
		if err == nil && payload != "" {
			tr.Write(ctx, `{"jsonrpc":"2.0","id":1,"result":{"ok":true}}`)
		}
	}()

	resp, err := http.Post(srv.URL+"/mcp", "application/json", bytes.NewBufferString(`{"jsonrpc":"2.0","id":1,"method":"initialize"}`))
	require.NoError(err)
	defer resp.Body.Close()
	assert.Equal(http.StatusOK, resp.StatusCode)
	assert.NotEmpty(resp.Header.Get("Mcp-Session-Id"))
}

func Test_httpstream_002(t *testing.T) {
	assert := assert.New(t)
	tr := transport.NewHTTPStream("127.0.0.1", 8090)
	assert.Equal("http-stream", tr.Name())
	assert.Equal(8090, tr.Port())
	tr.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	n, payload, err := tr.Read(ctx)
	assert.NoError(err)
	assert.Equal(0, n)
	assert.Equal("", payload)
}

func Test_httpstream_003(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	tr := transport.NewHTTPStream("127.0.0.1", 0)
	srv := httptest.NewServer(tr.Handler())
	t.Cleanup(srv.Close)

	// No Mcp-Session-Id header and no active session yet: a non-initialize
	// request must be rejected rather than silently accepted.
	resp, err := http.Post(srv.URL+"/mcp", "application/json", bytes.NewBufferString(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
	require.NoError(err)
	defer resp.Body.Close()
	assert.Equal(http.StatusNotFound, resp.StatusCode)
}

func Test_httpstream_004(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	tr := transport.NewHTTPStream("127.0.0.1", 0)
	srv := httptest.NewServer(tr.Handler())
	t.Cleanup(srv.Close)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/mcp", bytes.NewBufferString(`not json`))
	require.NoError(err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(err)
	defer resp.Body.Close()
	assert.Equal(http.StatusBadRequest, resp.StatusCode)
}
