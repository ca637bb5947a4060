package dump

import (
	"fmt"
	"net/http"
)

// Request describes one call to a collaborator. URL may be relative to the
// base url of the client the Dumper was created with.
type Request struct {
	Method string
	URL    string
	Header map[string]string
	// Body is serialized as JSON when set.
	Body any
}

func Get(url string, header map[string]string) Request {
	return Request{Method: http.MethodGet, URL: url, Header: header}
}

func Post(url string, header map[string]string, body any) Request {
	return Request{Method: http.MethodPost, URL: url, Header: header, Body: body}
}

// TransportError is returned when the collaborator could not be reached at
// all, as opposed to answering with an error status.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Method, e.URL, e.Err.Error())
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
