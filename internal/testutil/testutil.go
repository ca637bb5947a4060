package testutil

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fixture-crawler/internal/components/chrono"
	"fixture-crawler/internal/components/telemetry"
	"fixture-crawler/internal/crawlers"
)

// Now is the instant every crawler test runs at.
var Now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// SetupEnv returns a crawler env writing into a fresh assets root and
// recording every report.
func SetupEnv(t testing.TB) (crawlers.Env, *telemetry.Recorder) {
	t.Helper()
	rec := telemetry.NewRecorder()
	return crawlers.Env{
		Tel:        rec,
		Clock:      chrono.Fixed(Now),
		AssetsRoot: t.TempDir(),
	}, rec
}

func WriteJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(body))
}

// UnreachableURL is the url of a server that was shut down, requests to
// it fail at the transport level.
func UnreachableURL(t testing.TB) string {
	t.Helper()
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()
	return url
}
