package authtest

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

// Serve starts b's API on a loopback test server that is closed with tb.
// It returns the backend and its base URL.
func Serve(tb testing.TB, opts Options) (*Backend, string) {
	tb.Helper()

	b, err := New(opts)
	require.NoError(tb, err)

	srv := httptest.NewServer(b)
	tb.Cleanup(srv.Close)
	return b, srv.URL
}
