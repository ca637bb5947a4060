package dump

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"strings"

	"fixture-crawler/internal/assets"
	"fixture-crawler/internal/components/telemetry"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("fixture-crawler/internal/dump")

const (
	report_snapshot_exists = "dumper.snapshot-exists"
	report_invalid_json    = "dumper.invalid-json"
	report_limit_key       = "dumper.limit-key"
)

type Options struct {
	// Refetch issues the request even when every candidate snapshot exists,
	// callers set it when they need the response body to drive sampling.
	Refetch bool
	// Limit truncates the dumped document to at most Limit elements of
	// the array under LimitKey, an empty LimitKey means the document itself
	// is the array. Zero means no limit.
	Limit    int
	LimitKey string
	// Compact writes the document without indentation.
	Compact bool
	// Expect, when set, is the only status whose response is persisted,
	// any other response is returned without touching the category.
	Expect int
}

type Response struct {
	// Skipped is true when no request was made because every candidate
	// snapshot already exists.
	Skipped bool
	Name    string
	Status  int
	Kind    assets.ContentKind
	// Document is the parsed body when Kind is assets.KindJSON.
	Document any
	Text     []byte
}

// Dumper captures responses of one collaborator into one category.
type Dumper struct {
	client   *resty.Client
	category *assets.Category
	tel      telemetry.API
}

func NewDumper(client *resty.Client, category *assets.Category, tel telemetry.API) Dumper {
	return Dumper{client: client, category: category, tel: tel}
}

func (d Dumper) Category() *assets.Category {
	return d.category
}

// Dump issues req at most once and captures the response under name.
// Existing snapshots are never altered.
func (d Dumper) Dump(ctx context.Context, req Request, name assets.Name, opts Options) (Response, error) {
	ctx, span := tracer.Start(ctx, "dumper:Dump")
	defer span.End()
	span.SetAttributes(
		attribute.String("category", d.category.Name),
		attribute.String("asset", name.String()),
		attribute.String("url", req.URL),
	)

	store := d.category.Store
	if !opts.Refetch && store.AllExist(name.Candidates()) {
		d.tel.ReportDebug("skipping existing asset", d.category.Name, name.String())
		return Response{Skipped: true}, nil
	}

	r := d.client.R().SetContext(ctx).SetHeaders(req.Header)
	if req.Body != nil {
		r.SetBody(req.Body)
	}
	res, err := r.Execute(req.Method, req.URL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return Response{}, &TransportError{Method: req.Method, URL: req.URL, Err: err}
	}

	resolved, err := name.Resolve(res.StatusCode())
	if err != nil {
		span.SetStatus(codes.Error, "unmapped status code")
		return Response{}, fmt.Errorf("%s %s: %w", req.Method, req.URL, err)
	}

	out := Response{
		Name:   resolved,
		Status: res.StatusCode(),
		Kind:   assets.KindText,
		Text:   res.Body(),
	}
	if isJSON(res.Header().Get("Content-Type")) {
		doc, err := parseDocument(res.Body())
		if err == nil {
			out.Kind = assets.KindJSON
			out.Document = doc
		} else {
			d.tel.ReportWarning(report_invalid_json, d.category.Name, resolved, err)
		}
	}

	if opts.Expect != 0 && out.Status != opts.Expect {
		d.tel.ReportDebug("not persisting unexpected status", d.category.Name, resolved, out.Status)
		return out, nil
	}

	d.category.Ledger.Set(resolved, assets.Record{Kind: out.Kind, Status: out.Status})

	var path string
	if out.Kind == assets.KindJSON {
		path, err = store.WriteDocument(resolved, d.truncate(resolved, out.Document, opts), opts.Compact)
	} else {
		path, err = store.WriteText(resolved, out.Text)
	}
	if errors.Is(err, assets.ErrSnapshotExists) {
		d.tel.ReportWarning(report_snapshot_exists, path)
		return out, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to write snapshot")
		return out, err
	}
	d.tel.ReportDebug("dumped asset", path, out.Status)
	return out, nil
}

func isJSON(contentType string) bool {
	mediatype, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediatype == "application/json" || strings.HasSuffix(mediatype, "+json")
}

func parseDocument(body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc any
	err := dec.Decode(&doc)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// truncate returns a shallow copy of doc whose limited array holds at most
// opts.Limit elements, the caller keeps the complete document.
func (d Dumper) truncate(name string, doc any, opts Options) any {
	if opts.Limit <= 0 {
		return doc
	}
	if opts.LimitKey == "" {
		items, ok := doc.([]any)
		if !ok {
			d.tel.ReportWarning(report_limit_key, name, "document is not an array")
			return doc
		}
		return limit(items, opts.Limit)
	}
	object, ok := doc.(map[string]any)
	if !ok {
		d.tel.ReportWarning(report_limit_key, name, "document is not an object")
		return doc
	}
	items, ok := object[opts.LimitKey].([]any)
	if !ok {
		d.tel.ReportWarning(report_limit_key, name, opts.LimitKey)
		return doc
	}
	copied := make(map[string]any, len(object))
	for k, v := range object {
		copied[k] = v
	}
	copied[opts.LimitKey] = limit(items, opts.Limit)
	return copied
}

func limit(items []any, n int) []any {
	if len(items) <= n {
		return items
	}
	return items[:n]
}
