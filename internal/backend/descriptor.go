// Copyright (c) 2025 Acctl
// Licensed under the MIT License. See LICENSE file in the project root for details.

package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Options are the per-call settings accepted by Call and Do.
type Options struct {
	// Method defaults to GET.
	Method string
	// Body is JSON-encoded unless it is already []byte or json.RawMessage.
	Body any
	// Query is merged into the target's own query string.
	Query url.Values
	// Headers override the default headers, except the anti-forgery header.
	Headers http.Header
}

// Descriptor captures everything needed to issue, or re-issue, one call.
type Descriptor struct {
	Target  string
	Method  string
	Body    any
	Query   url.Values
	Headers http.Header
}

// NewDescriptor builds a descriptor owning copies of the caller's query and headers,
// so a replay sees exactly what the original call sent.
func NewDescriptor(target string, opts Options) Descriptor {
	method := strings.ToUpper(strings.TrimSpace(opts.Method))
	if method == "" {
		method = http.MethodGet
	}
	d := Descriptor{
		Target: target,
		Method: method,
		Body:   opts.Body,
	}
	if opts.Query != nil {
		d.Query = make(url.Values, len(opts.Query))
		for k, v := range opts.Query {
			d.Query[k] = append([]string(nil), v...)
		}
	}
	if opts.Headers != nil {
		d.Headers = opts.Headers.Clone()
	}
	return d
}

// encodeBody returns the request body reader, or nil when there is no body.
func (d Descriptor) encodeBody() (io.Reader, error) {
	switch b := d.Body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return bytes.NewReader(b), nil
	case json.RawMessage:
		return bytes.NewReader(b), nil
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		return bytes.NewReader(raw), nil
	}
}
