// Copyright (c) 2025 Acctl
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package httperrors provides user-friendly error handling for API calls.
package httperrors

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strings"
	"syscall"

	"github.com/pterm/pterm"

	"acctl/cli/internal/backend"
	acerrors "acctl/cli/internal/errors"
	"acctl/cli/internal/logging"
)

// Category groups failures by the advice shown to the user.
type Category int

const (
	CategoryGeneric Category = iota
	CategoryTimeout
	CategoryDNS
	CategoryConnectionRefused
	CategoryTLS
	CategoryServer
)

// Classify picks the advice category for a network or server failure.
// err may be a Go error or a *backend.Failure carrying the masked cause.
func Classify(err error) Category {
	if err == nil {
		return CategoryGeneric
	}
	var f *backend.Failure
	if errors.As(err, &f) && f.HTTPStatus >= 500 {
		return CategoryServer
	}

	switch {
	case isTimeoutError(err):
		return CategoryTimeout
	case isDNSError(err):
		return CategoryDNS
	case isConnectionRefusedError(err):
		return CategoryConnectionRefused
	case isSSLError(err):
		return CategoryTLS
	case isServerError(err.Error()):
		return CategoryServer
	}
	return CategoryGeneric
}

// FormatNetworkError shows troubleshooting help for a failure to reach the
// API and returns the error wrapped for logging.
func FormatNetworkError(err error, context, host string) error {
	if err == nil {
		return nil
	}
	switch Classify(err) {
	case CategoryTimeout:
		showTimeoutError(context)
	case CategoryDNS:
		showDNSError(context, host)
	case CategoryConnectionRefused:
		showConnectionRefusedError(context, host)
	case CategoryTLS:
		showSSLError(context)
	case CategoryServer:
		showServerError(context)
	default:
		showGenericError(context, host, err.Error())
	}
	return fmt.Errorf("network error: %w", err)
}

// Explain prints the right message for any error returned by an API call
// and returns it unchanged so commands can `return httperrors.Explain(...)`.
func Explain(err error, context, host string) error {
	if err == nil {
		return nil
	}
	var f *backend.Failure
	switch {
	case errors.Is(err, backend.ErrRefreshFailed):
		// The navigator already told the user to log in again.
		return acerrors.Wrap(acerrors.SessionExpired, "session expired while "+context, err)
	case errors.As(err, &f) && f.Kind == backend.KindNetworkOrServer:
		_ = FormatNetworkError(f, context, host)
		return acerrors.Wrap(acerrors.RequestFailed, context, err)
	case errors.As(err, &f):
		Present(f, context)
		return acerrors.Wrap(acerrors.RequestFailed, context, err)
	case acerrors.KindOf(err) != "":
		pterm.Error.Println(Summary(context, err))
		return err
	default:
		showGenericError(context, host, err.Error())
		return err
	}
}

// Summary is the masked one-line form of err, prefixed with context. API
// failures show their message and code rather than the wrapped error chain.
func Summary(context string, err error) string {
	if err == nil {
		return ""
	}
	var f *backend.Failure
	if errors.As(err, &f) {
		msg := f.Message
		if f.Code != "" {
			msg += " (" + f.Code + ")"
		}
		return context + ": " + logging.Mask(msg)
	}
	return context + ": " + logging.Mask(err.Error())
}

// Present prints an API failure with its field errors. Server-supplied text
// is masked, since APIs echo submitted values back in validation errors.
func Present(f *backend.Failure, context string) {
	if f == nil {
		return
	}
	pterm.Error.Printf("%s failed: %s\n", context, logging.Mask(f.Message))
	if f.Code != "" {
		pterm.Println(pterm.Gray("  code: " + f.Code))
	}
	for _, line := range detailLines(f.Detail) {
		pterm.Println("  • " + logging.Mask(line))
	}
}

// detailLines flattens a field-error map like {"email": ["taken"]} into
// "email: taken" lines, sorted by field.
func detailLines(detail any) []string {
	switch d := detail.(type) {
	case nil:
		return nil
	case string:
		return []string{d}
	case []any:
		out := make([]string, 0, len(d))
		for _, v := range d {
			out = append(out, fmt.Sprint(v))
		}
		return out
	case map[string]any:
		keys := make([]string, 0, len(d))
		for k := range d {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]string, 0, len(keys))
		for _, k := range keys {
			out = append(out, k+": "+strings.Join(detailLines(d[k]), ", "))
		}
		return out
	default:
		return []string{fmt.Sprint(d)}
	}
}

// isTimeoutError checks if the error is a timeout error.
func isTimeoutError(err error) bool {
	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// isDNSError checks if the error is a DNS resolution error.
func isDNSError(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "no such host")
}

// isConnectionRefusedError checks if the error is a connection refused error.
func isConnectionRefusedError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) && errors.Is(opErr.Err, syscall.ECONNREFUSED) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "connection refused")
}

// isSSLError checks if the error is an SSL/TLS error.
func isSSLError(err error) bool {
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "tls") ||
		strings.Contains(errStr, "x509") ||
		strings.Contains(errStr, "certificate")
}

// isServerError checks if the error text indicates a server-side problem.
func isServerError(errStr string) bool {
	lower := strings.ToLower(errStr)
	return strings.Contains(lower, "internal server error") ||
		strings.Contains(lower, "bad gateway") ||
		strings.Contains(lower, "service unavailable") ||
		strings.Contains(lower, "gateway timeout")
}

func showTimeoutError(context string) {
	pterm.Printf("⏱️  Connection timeout while %s\n", context)
	pterm.Println()
	pterm.Println("The server took too long to respond. This could mean:")
	pterm.Println("  • Slow network connection")
	pterm.Println("  • Server is under heavy load")
	pterm.Println("  • A firewall is dropping the connection")
	pterm.Println()
	pterm.Println("Try again, or raise the limit with: acctl config set timeout 60s")
	pterm.Println()
}

func showDNSError(context, host string) {
	pterm.Printf("🌐 Cannot resolve server address while %s\n", context)
	pterm.Println()
	pterm.Printf("Unable to look up %s. Please check:\n", host)
	pterm.Println("  • base_url in your config (acctl config show)")
	pterm.Println("  • Your network connection and DNS settings")
	pterm.Println()
}

func showConnectionRefusedError(context, host string) {
	pterm.Printf("🚫 Connection refused while %s\n", context)
	pterm.Println()
	pterm.Printf("Nothing is accepting connections at %s. This could mean:\n", host)
	pterm.Println("  • The accounts service is down")
	pterm.Println("  • Wrong server address or port in base_url")
	pterm.Println()
}

func showSSLError(context string) {
	pterm.Printf("🔒 Secure connection failed while %s\n", context)
	pterm.Println()
	pterm.Println("Cannot establish a secure HTTPS connection. This could mean:")
	pterm.Println("  • SSL/TLS certificate issue")
	pterm.Println("  • Network proxy interfering with HTTPS")
	pterm.Println("  • System clock is incorrect")
	pterm.Println()
}

func showServerError(context string) {
	pterm.Printf("⚠️  Server error while %s\n", context)
	pterm.Println()
	pterm.Println("The accounts service failed to handle the request.")
	pterm.Println("This is not a problem with your setup. Please try again in a few minutes.")
	pterm.Println()
}

func showGenericError(context, host, errDetails string) {
	pterm.Printf("❌ Cannot reach %s while %s\n", host, context)
	pterm.Println()
	pterm.Println("Please check:")
	pterm.Println("  • Your network connection")
	pterm.Println("  • base_url in your config (acctl config show)")
	pterm.Println()

	if errDetails != "" {
		shortErr := logging.Mask(errDetails)
		if len(shortErr) > 100 {
			shortErr = shortErr[:100] + "..."
		}
		pterm.Debug.Printf("Technical details: %s\n", shortErr)
		pterm.Println()
	}
}

// ExtractHostFromURL extracts the hostname from a URL for error messages.
func ExtractHostFromURL(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil || u.Host == "" {
		return "server"
	}
	return u.Host
}
