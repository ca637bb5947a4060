package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"fixture-crawler/internal/assets"
	"fixture-crawler/internal/credential"
	"fixture-crawler/internal/testutil"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const token = "gateway-token"

type fakeGateway struct {
	mutex         sync.Mutex
	messageStatus int
	drawBody      map[string]any
	drawPath      string
}

func (f *fakeGateway) setMessageStatus(status int) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.messageStatus = status
}

func (f *fakeGateway) draw() (string, map[string]any) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.drawPath, f.drawBody
}

func (f *fakeGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	authorized := r.Header.Get("Authorization") == "Bearer "+token
	switch {
	case r.URL.Path == "/api/login" && r.Method == http.MethodPost:
		var req loginRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.User != "alice" || req.Password != "secret" {
			testutil.WriteJSON(w, http.StatusUnauthorized, `{"code":401,"name":"Unauthorized","description":"LDAP authentication failed"}`)
			return
		}
		testutil.WriteJSON(w, http.StatusOK, `{"token":"`+token+`","fullname":"Alice","groups":["admins"]}`)
	case r.URL.Path == "/api/clusters" || r.URL.Path == "/api/users":
		if !authorized {
			testutil.WriteJSON(w, http.StatusForbidden, `{"code":403,"description":"not allowed"}`)
			return
		}
		testutil.WriteJSON(w, http.StatusOK, `[]`)
	case r.URL.Path == "/api/messages/login":
		if f.messageStatus == http.StatusOK {
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte("<p>welcome</p>"))
			return
		}
		testutil.WriteJSON(w, f.messageStatus, `{"code":404,"description":"login service message not found"}`)
	case r.Method == http.MethodPost && r.URL.RawQuery == "coordinates":
		f.drawPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &f.drawBody)
		w.Header().Set("Content-Type", "multipart/form-data; boundary=x")
		w.Write([]byte("--x\r\n\r\nimage\r\n--x--"))
	default:
		testutil.WriteJSON(w, http.StatusNotFound, `{"code":404,"description":"not found"}`)
	}
}

func newCrawler(t *testing.T, url, password string) (Crawler, string) {
	env, _ := testutil.SetupEnv(t)
	return New(env, Config{
		URL:      url,
		User:     "alice",
		Password: password,
		Draw:     &DrawTarget{Cluster: "foo", Infrastructure: "foo"},
	}), env.AssetsRoot
}

func TestCrawl(t *testing.T) {
	fake := &fakeGateway{messageStatus: http.StatusNotFound}
	server := httptest.NewServer(fake)
	defer server.Close()

	crawler, root := newCrawler(t, server.URL, "secret")
	bearer, err := crawler.Crawl(context.Background())
	require.NoError(t, err)
	require.Equal(t, credential.Bearer(token), bearer)

	dir := filepath.Join(root, Category)
	ledger, err := assets.LoadLedger(dir)
	require.NoError(t, err)
	expected := map[string]assets.Record{
		"login":                    {Kind: assets.KindJSON, Status: 200},
		"login-denied":             {Kind: assets.KindJSON, Status: 401},
		"clusters":                 {Kind: assets.KindJSON, Status: 200},
		"clusters-unauthorized":    {Kind: assets.KindJSON, Status: 403},
		"users":                    {Kind: assets.KindJSON, Status: 200},
		"message_login_not_found":  {Kind: assets.KindJSON, Status: 404},
		"racksdb-draw-coordinates": {Kind: assets.KindText, Status: 200},
		"unknown-path":             {Kind: assets.KindJSON, Status: 404},
	}
	if diff := cmp.Diff(expected, ledger.Records()); diff != "" {
		t.Fatal(diff)
	}
	require.NoFileExists(t, filepath.Join(dir, "message_login.txt"))
	require.NoFileExists(t, filepath.Join(dir, "message_login_error.json"))

	drawPath, drawBody := fake.draw()
	require.Equal(t, "/api/agents/foo/racksdb/draw/infrastructure/foo.png", drawPath)
	expectedBody := map[string]any{
		"general":        map[string]any{"pixel_perfect": true},
		"dimensions":     map[string]any{"width": float64(1000), "height": float64(1000)},
		"infrastructure": map[string]any{"equipment_labels": false, "ghost_unselected": true},
	}
	if diff := cmp.Diff(expectedBody, drawBody); diff != "" {
		t.Fatal(diff)
	}
}

func TestMessageOutcomes(t *testing.T) {
	fake := &fakeGateway{messageStatus: http.StatusOK}
	server := httptest.NewServer(fake)
	defer server.Close()

	crawler, root := newCrawler(t, server.URL, "secret")
	_, err := crawler.Crawl(context.Background())
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(root, Category, "message_login.txt"))

	// every outcome of the message is captured once they have all been seen
	fake.setMessageStatus(http.StatusInternalServerError)
	_, err = crawler.Crawl(context.Background())
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(root, Category, "message_login_error.json"))
}

func TestLoginDenied(t *testing.T) {
	server := httptest.NewServer(&fakeGateway{messageStatus: http.StatusNotFound})
	defer server.Close()

	crawler, root := newCrawler(t, server.URL, "wrong")
	_, err := crawler.Crawl(context.Background())
	require.ErrorIs(t, err, ErrLogin)
	require.ErrorContains(t, err, "LDAP authentication failed")
	require.NoFileExists(t, filepath.Join(root, Category, "login.json"))

	ledger, err := assets.LoadLedger(filepath.Join(root, Category))
	require.NoError(t, err)
	_, ok := ledger.Get("login")
	require.False(t, ok)
}

func TestLoginAfterDeniedAttempt(t *testing.T) {
	server := httptest.NewServer(&fakeGateway{messageStatus: http.StatusNotFound})
	defer server.Close()

	env, _ := testutil.SetupEnv(t)
	_, err := New(env, Config{URL: server.URL, User: "alice", Password: "wrong"}).Crawl(context.Background())
	require.ErrorIs(t, err, ErrLogin)

	bearer, err := New(env, Config{URL: server.URL, User: "alice", Password: "secret"}).Crawl(context.Background())
	require.NoError(t, err)
	require.Equal(t, credential.Bearer(token), bearer)

	root := env.AssetsRoot
	raw, err := os.ReadFile(filepath.Join(root, Category, "login.json"))
	require.NoError(t, err)
	require.Contains(t, string(raw), "token")
	require.NotContains(t, string(raw), "LDAP authentication failed")

	ledger, err := assets.LoadLedger(filepath.Join(root, Category))
	require.NoError(t, err)
	record, ok := ledger.Get("login")
	require.True(t, ok)
	require.Equal(t, http.StatusOK, record.Status)
}
