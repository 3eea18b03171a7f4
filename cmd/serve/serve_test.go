package serve

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"ecobridge/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeCommand_Metadata(t *testing.T) {
	assert.Equal(t, "serve", Cmd.Use)
	assert.NotNil(t, Cmd.RunE)
	assert.NotNil(t, Cmd.Flags().Lookup("addr"))
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	srv := &http.Server{Addr: addr, Handler: http.NotFoundHandler()}
	logger := logging.NewMockLogger()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- run(ctx, srv, logger) }()

	require.Eventually(t, func() bool {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
	assert.True(t, logger.HasEntry("INFO", "Shutting down HTTP server"))
}

func TestRun_ListenError(t *testing.T) {
	srv := &http.Server{Addr: "256.0.0.1:bad"}
	err := run(context.Background(), srv, logging.NewMockLogger())
	assert.Error(t, err)
}
