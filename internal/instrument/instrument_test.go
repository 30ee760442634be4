package instrument

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMetrics_CountersAndHandler(t *testing.T) {
	require := require.New(t)
	m := New()
	m.RegisterGauges(func() int { return 4 }, func() int { return 2 })

	m.FailedLogin()
	m.FailedLogin()
	m.FailedRequest()
	m.Frame("message")
	m.Alert("login_failure", "high")

	require.Equal(uint64(2), m.FailedLogins())
	require.Equal(uint64(1), m.FailedRequests())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(err)
	require.Contains(string(body), "cipherline_failed_logins_total 2")
	require.Contains(string(body), "cipherline_active_connections 4")
	require.Contains(string(body), `cipherline_frames_total{type="message"} 1`)
}

func TestMetrics_Independent(t *testing.T) {
	a, b := New(), New()
	a.FailedRequest()
	require.Equal(t, uint64(0), b.FailedRequests())
}
