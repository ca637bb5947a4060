package crawlers

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"fixture-crawler/internal/assets"
	"fixture-crawler/internal/components/chrono"
	"fixture-crawler/internal/components/telemetry"
	"fixture-crawler/internal/dump"
	"fixture-crawler/lib/restyutil"
	libtelemetry "fixture-crawler/lib/telemetry"

	"github.com/go-resty/resty/v2"
)

// socketHost is the placeholder host of requests sent over a unix socket.
const socketHost = "http://unix-socket"

// Env is what every crawler shares.
type Env struct {
	Tel   telemetry.API
	Clock chrono.API
	// AssetsRoot receives one directory per category.
	AssetsRoot string
	// Transcripts receives every http exchange when set.
	Transcripts restyutil.InstrumentOutput
}

// Scoped returns a copy of env whose reports are namespaced.
func (e Env) Scoped(namespace string) Env {
	e.Tel = telemetry.NewScopedAPI(namespace, e.Tel)
	return e
}

// NewClient returns a client of the collaborator at baseURL. A
// unix://<path> base url sends every request through that socket.
func (e Env) NewClient(name, baseURL string) (*resty.Client, error) {
	client := resty.New()

	if strings.HasPrefix(baseURL, "unix://") {
		socket := strings.TrimPrefix(baseURL, "unix://")
		if socket == "" {
			return nil, fmt.Errorf("%s: empty unix socket path", name)
		}
		client.SetTransport(&http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var dialer net.Dialer
				return dialer.DialContext(ctx, "unix", socket)
			},
		})
		baseURL = socketHost
	} else {
		parsed, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return nil, fmt.Errorf("%s: unsupported url %q", name, baseURL)
		}
	}

	client.SetBaseURL(strings.TrimSuffix(baseURL, "/"))
	client.SetRetryCount(0)

	libtelemetry.InstrumentResty(client, "fixture-crawler/"+name)
	telemetry.InstrumentResty(client, e.Tel)
	restyutil.InstrumentClient(client, name, e.Transcripts)
	return client, nil
}

// OpenDumper opens the category and binds it to client.
func (e Env) OpenDumper(client *resty.Client, category string) (dump.Dumper, error) {
	c, err := assets.OpenCategory(e.AssetsRoot, category)
	if err != nil {
		return dump.Dumper{}, err
	}
	return dump.NewDumper(client, c, e.Tel), nil
}

// CloseDumper persists the ledger of the dumper category, keeping the
// first error.
func (e Env) CloseDumper(d dump.Dumper, err *error) {
	category := d.Category()
	e.Tel.ReportCount(category.Name+".ledger-entries", int64(category.Ledger.Len()))
	closeErr := category.Close()
	if *err == nil {
		*err = closeErr
	}
}
