// Copyright (c) 2025 Acctl
// Licensed under the MIT License. See LICENSE file in the project root for details.

package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"acctl/cli/internal/logging"
)

// Kind classifies a failed call.
type Kind string

const (
	// KindAuthExpired means the server rejected the session credential (401).
	KindAuthExpired Kind = "auth_expired"
	// KindClientRejected is a 4xx answer carrying a structured error body.
	KindClientRejected Kind = "client_rejected"
	// KindNetworkOrServer covers transport failures, 5xx and unstructured answers.
	KindNetworkOrServer Kind = "network_or_server"
	// KindRefreshFailed is terminal: the session could not be renewed.
	KindRefreshFailed Kind = "refresh_failed"
)

// Sentinels matched by *Error through errors.Is.
var (
	ErrAuthExpired     = errors.New("backend: session expired")
	ErrClientRejected  = errors.New("backend: request rejected")
	ErrNetworkOrServer = errors.New("backend: network or server failure")
	ErrRefreshFailed   = errors.New("backend: session refresh failed")
)

// Error is a classified call failure.
type Error struct {
	Kind   Kind
	Method string
	Target string
	Status int
	Header http.Header
	Body   []byte
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Method != "" || e.Target != "" {
		fmt.Fprintf(&b, ": %s %s", e.Method, logging.Mask(e.Target))
	}
	if e.Status != 0 {
		fmt.Fprintf(&b, ": status %d", e.Status)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is maps the error kind onto the package sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrAuthExpired:
		return e.Kind == KindAuthExpired
	case ErrClientRejected:
		return e.Kind == KindClientRejected
	case ErrNetworkOrServer:
		return e.Kind == KindNetworkOrServer
	case ErrRefreshFailed:
		return e.Kind == KindRefreshFailed
	}
	return false
}

// Failure is the structured error value returned as data for client and
// network/server failures. Its JSON form is {status:false, code, message, detail?}.
type Failure struct {
	Status     bool   `json:"status"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Detail     any    `json:"detail,omitempty"`
	Kind       Kind   `json:"-"`
	HTTPStatus int    `json:"-"`
}

func (f *Failure) Error() string {
	if f.Code == "" {
		return f.Message
	}
	return f.Code + ": " + f.Message
}

// newFailure shapes a classified error into the caller-facing value, lifting
// code/message/detail out of a JSON error body when the server sent one.
func newFailure(e *Error) *Failure {
	f := &Failure{Kind: e.Kind, HTTPStatus: e.Status}

	var body map[string]any
	if len(e.Body) > 0 && json.Unmarshal(e.Body, &body) == nil {
		f.Code = firstString(body, "code", "error_code", "error")
		f.Message = firstString(body, "message", "detail", "error_description", "error")
		if d, ok := body["detail"]; ok {
			if _, isString := d.(string); !isString || f.Message != d {
				f.Detail = d
			}
		}
		if errs, ok := body["errors"]; ok && f.Detail == nil {
			f.Detail = errs
		}
	}

	if f.Code == "" {
		switch {
		case e.Status == 0:
			f.Code = "network_error"
		case e.Status >= 500:
			f.Code = "server_error"
		default:
			f.Code = "http_" + strconv.Itoa(e.Status)
		}
	}
	if f.Message == "" {
		switch {
		case e.Status != 0:
			f.Message = http.StatusText(e.Status)
		case e.Err != nil:
			f.Message = logging.Mask(e.Err.Error())
		default:
			f.Message = "request failed"
		}
	}
	return f
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// refreshFailed wraps cause as the terminal refresh failure for target.
func refreshFailed(method, target string, cause error) *Error {
	e := &Error{Kind: KindRefreshFailed, Method: method, Target: target, Err: cause}
	var inner *Error
	if errors.As(cause, &inner) {
		e.Status = inner.Status
	}
	return e
}
