package core

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// UnavailableBody is returned when neither network nor cache can answer.
const UnavailableBody = "Contenido no disponible sin conexión"

// CachedResponse is a captured response as held by a cache store
type CachedResponse struct {
	URL        string      `json:"url"`
	Status     int         `json:"status"`
	StatusText string      `json:"status_text"`
	Header     http.Header `json:"header"`
	Body       []byte      `json:"body"`
	StoredAt   time.Time   `json:"stored_at"`
}

// NewCachedResponse captures status and headers of resp together with an
// already read body.
func NewCachedResponse(url string, resp *http.Response, body []byte, now time.Time) *CachedResponse {
	return &CachedResponse{
		URL:        url,
		Status:     resp.StatusCode,
		StatusText: statusText(resp),
		Header:     resp.Header.Clone(),
		Body:       body,
		StoredAt:   now,
	}
}

// Response builds a fresh *http.Response for r. Every call returns an
// independent body, so a stored entry can be served any number of times.
func (c *CachedResponse) Response(r *http.Request) *http.Response {
	header := c.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	header.Set("Content-Length", strconv.Itoa(len(c.Body)))

	text := c.StatusText
	if text == "" {
		text = http.StatusText(c.Status)
	}

	return &http.Response{
		Status:        strconv.Itoa(c.Status) + " " + text,
		StatusCode:    c.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(c.Body)),
		ContentLength: int64(len(c.Body)),
		Request:       r,
	}
}

// UnavailableResponse is the synthetic answer when offline with nothing cached.
func UnavailableResponse(r *http.Request) *http.Response {
	c := &CachedResponse{
		Status:     http.StatusServiceUnavailable,
		StatusText: "Service Unavailable",
		Header:     http.Header{"Content-Type": []string{"text/plain"}},
		Body:       []byte(UnavailableBody),
	}
	return c.Response(r)
}

func statusText(resp *http.Response) string {
	// resp.Status is "200 OK"
	if _, text, ok := strings.Cut(resp.Status, " "); ok && text != "" {
		return text
	}
	return http.StatusText(resp.StatusCode)
}
