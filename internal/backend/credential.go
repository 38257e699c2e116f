// Copyright (c) 2025 Acctl
// Licensed under the MIT License. See LICENSE file in the project root for details.

package backend

import (
	"net/http"
	"net/url"
)

const (
	// DefaultCSRFHeader carries the anti-forgery token on every call.
	DefaultCSRFHeader = "X-CSRFToken"
	// DefaultCSRFCookie is the client-readable cookie the token is taken from.
	DefaultCSRFCookie = "csrftoken"
)

// CredentialProvider yields the current anti-forgery token, or "" when none is available.
type CredentialProvider interface {
	CSRFToken() string
}

// StaticCredential is a fixed token, useful for non-interactive runs and tests.
type StaticCredential string

// CSRFToken implements CredentialProvider.
func (s StaticCredential) CSRFToken() string { return string(s) }

// CookieJarProvider reads the token from the process cookie jar.
type CookieJarProvider struct {
	Jar  http.CookieJar
	URL  *url.URL
	Name string
}

// CSRFToken implements CredentialProvider.
func (p CookieJarProvider) CSRFToken() string {
	if p.Jar == nil || p.URL == nil {
		return ""
	}
	name := p.Name
	if name == "" {
		name = DefaultCSRFCookie
	}
	for _, c := range p.Jar.Cookies(p.URL) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

// Attach sets the anti-forgery header on req. It never fails: a missing
// provider or token results in an empty header value.
func Attach(req *http.Request, provider CredentialProvider, header string) {
	if header == "" {
		header = DefaultCSRFHeader
	}
	token := ""
	if provider != nil {
		token = provider.CSRFToken()
	}
	req.Header.Set(header, token)
}
