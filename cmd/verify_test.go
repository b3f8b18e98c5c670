package cmd

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"skbench/internal/mockseckill"
)

// pointAtMock targets the command layer at an in-process service and
// restores the globals afterwards.
func pointAtMock(t *testing.T, opts mockseckill.Options) {
	t.Helper()

	mock := mockseckill.New(opts)
	srv := httptest.NewServer(mock.Handler())

	oldBase, oldLog := baseURL, logFile
	baseURL, logFile = srv.URL, ""
	t.Cleanup(func() {
		baseURL, logFile = oldBase, oldLog
		srv.Close()
	})
}

func TestVerifyPassReturnsNil(t *testing.T) {
	pointAtMock(t, mockseckill.Options{})
	require.NoError(t, execVerifyDuplicate(0))
}

func TestVerifyFailReturnsSentinel(t *testing.T) {
	pointAtMock(t, mockseckill.Options{DuplicateBug: true})

	err := execVerifyDuplicate(0)
	require.ErrorIs(t, err, errVerificationFailed)
}
