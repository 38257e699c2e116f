// Copyright (c) 2025 Acctl
// Licensed under the MIT License. See LICENSE file in the project root for details.

package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"acctl/cli/internal/logging"
)

// maxBodyBytes bounds how much of a response body is buffered.
const maxBodyBytes = 8 << 20

// Result is the outcome of a call that did not end in a Go error.
// Failure is nil on success.
type Result struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Failure    *Failure
}

// OK reports whether the call succeeded.
func (r *Result) OK() bool { return r != nil && r.Failure == nil }

// Decode unmarshals the body into v. An empty body leaves v untouched.
func (r *Result) Decode(v any) error {
	if r == nil || len(r.Body) == 0 {
		return nil
	}
	return json.Unmarshal(r.Body, v)
}

// Transport executes one HTTP call and classifies its outcome.
type Transport struct {
	// baseURL is the base URL targets are resolved against (e.g. "https://accounts.example.com")
	baseURL *url.URL
	// client carries the shared cookie jar; the session credential lives there
	client      *http.Client
	credentials CredentialProvider
	csrfHeader  string
	userAgent   string
	logger      zerolog.Logger
	metrics     *Metrics
}

// Execute sends the described call. On success it returns the response; on
// failure it returns a *Error classified as AuthExpired, ClientRejected or
// NetworkOrServer.
func (t *Transport) Execute(ctx context.Context, d Descriptor) (*Result, error) {
	target, err := t.resolve(d)
	if err != nil {
		return nil, &Error{Kind: KindNetworkOrServer, Method: d.Method, Target: d.Target, Err: err}
	}
	body, err := d.encodeBody()
	if err != nil {
		return nil, &Error{Kind: KindNetworkOrServer, Method: d.Method, Target: d.Target, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, d.Method, target, body)
	if err != nil {
		return nil, &Error{Kind: KindNetworkOrServer, Method: d.Method, Target: d.Target, Err: err}
	}
	t.setStandardHeaders(req)
	for k, vals := range d.Headers {
		req.Header.Del(k)
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
	Attach(req, t.credentials, t.csrfHeader)

	requestID := req.Header.Get("X-Request-ID")
	log := t.logger.With().Str("request_id", requestID).Str("method", d.Method).Str("url", logging.Mask(target)).Logger()
	log.Debug().Msg("sending request")

	start := time.Now()
	t.metrics.RecordRequestStart(d.Method)
	resp, err := t.client.Do(req)
	t.metrics.RecordRequestEnd(d.Method)
	if err != nil {
		t.metrics.RecordRequest(d.Method, KindNetworkOrServer, time.Since(start))
		log.Debug().Err(err).Msg("request failed")
		return nil, &Error{Kind: KindNetworkOrServer, Method: d.Method, Target: d.Target, Err: err}
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	elapsed := time.Since(start)
	log.Debug().Int("status", resp.StatusCode).Dur("elapsed", elapsed).Msg("response received")

	if readErr != nil {
		t.metrics.RecordRequest(d.Method, KindNetworkOrServer, elapsed)
		return nil, &Error{Kind: KindNetworkOrServer, Method: d.Method, Target: d.Target, Status: resp.StatusCode, Err: fmt.Errorf("read body: %w", readErr)}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		t.metrics.RecordRequest(d.Method, "", elapsed)
		return &Result{StatusCode: resp.StatusCode, Header: resp.Header, Body: raw}, nil
	}

	kind := classify(resp.StatusCode, raw)
	t.metrics.RecordRequest(d.Method, kind, elapsed)
	return nil, &Error{
		Kind:   kind,
		Method: d.Method,
		Target: d.Target,
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   raw,
	}
}

// classify maps a non-2xx answer onto a failure kind.
func classify(status int, body []byte) Kind {
	switch {
	case status == http.StatusUnauthorized:
		return KindAuthExpired
	case status >= 400 && status < 500 && isJSONObject(body):
		return KindClientRejected
	default:
		return KindNetworkOrServer
	}
}

func isJSONObject(body []byte) bool {
	var obj map[string]json.RawMessage
	return json.Unmarshal(body, &obj) == nil
}

// resolve joins the target with the base URL and merges the descriptor query.
func (t *Transport) resolve(d Descriptor) (string, error) {
	ref, err := url.Parse(d.Target)
	if err != nil {
		return "", fmt.Errorf("parse target: %w", err)
	}
	u := ref
	if !ref.IsAbs() {
		if t.baseURL == nil {
			return "", fmt.Errorf("relative target %q without base URL", d.Target)
		}
		u = joinPath(t.baseURL, ref)
	}
	if len(d.Query) > 0 {
		q := u.Query()
		for k, vals := range d.Query {
			for _, v := range vals {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// location returns the host and path target resolves to, without query or
// fragment. Relative targets take the base URL's host and path prefix.
func (t *Transport) location(target string) string {
	ref, err := url.Parse(target)
	if err != nil {
		return target
	}
	u := ref
	if !ref.IsAbs() && t.baseURL != nil {
		u = joinPath(t.baseURL, ref)
	}
	return u.Host + u.Path
}

// joinPath appends ref's path to base's path, keeping any base path prefix.
func joinPath(base, ref *url.URL) *url.URL {
	u := *base
	u.Path = strings.TrimRight(base.Path, "/") + "/" + strings.TrimLeft(ref.Path, "/")
	u.RawPath = ""
	u.RawQuery = ref.RawQuery
	u.Fragment = ""
	return &u
}

// setStandardHeaders applies the defaults callers may override.
func (t *Transport) setStandardHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}
	req.Header.Set("X-Request-ID", uuid.NewString())
}
