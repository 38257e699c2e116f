// Copyright (c) 2025 Acctl
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"acctl/cli/internal/backend"
	acerrors "acctl/cli/internal/errors"
)

var (
	callData    string
	callQuery   []string
	callHeaders []string
)

// callCmd sends an arbitrary request through the session gateway.
var callCmd = &cobra.Command{
	Use:   "call METHOD PATH",
	Short: "Send a raw request to the accounts API",
	Long: `The call command sends one request through the same gateway the other commands
use: the session cookie and anti-forgery header are attached, an expired session is
refreshed once and the request retried.

The response body is printed as JSON. Failed requests print the error body and
exit with status 1.

Examples:
  acctl call GET /api/accounts/users/ --query page=2
  acctl call PATCH /api/accounts/users/7/ --data '{"first_name":"Ada"}'
  acctl call POST /api/accounts/roles/ --data @role.json`,
	Args: cobra.ExactArgs(2),

	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := callOptions(args[0], cmd.InOrStdin())
		if err != nil {
			return err
		}
		return withApp(func(a *app) error {
			res, err := spin("Calling "+args[1], func() (*backend.Result, error) {
				return a.gw.Call(cmd.Context(), args[1], opts)
			})
			if err != nil {
				return a.explain(err, "calling "+args[1])
			}
			a.logger.Debug().Int("status", res.StatusCode).Msg("call finished")
			if err := printBody(os.Stdout, res.Body); err != nil {
				return err
			}
			if res.Failure != nil {
				return acerrors.Wrap(acerrors.RequestFailed, "calling "+args[1], res.Failure)
			}
			return nil
		})
	},
}

func init() {
	callCmd.Flags().StringVarP(&callData, "data", "d", "", "JSON request body, @file to read a file, or @- for stdin")
	callCmd.Flags().StringArrayVarP(&callQuery, "query", "q", nil, "Query parameter as key=value (repeatable)")
	callCmd.Flags().StringArrayVarP(&callHeaders, "header", "H", nil, "Request header as 'Name: value' (repeatable)")
	rootCmd.AddCommand(callCmd)
}

// callOptions turns the flags into gateway options.
func callOptions(method string, stdin io.Reader) (backend.Options, error) {
	opts := backend.Options{Method: strings.ToUpper(method)}

	body, err := readData(callData, stdin)
	if err != nil {
		return opts, err
	}
	if body != nil {
		if !json.Valid(body) {
			return opts, fmt.Errorf("--data is not valid JSON")
		}
		opts.Body = json.RawMessage(body)
	}

	if len(callQuery) > 0 {
		opts.Query = url.Values{}
		for _, kv := range callQuery {
			k, v, ok := strings.Cut(kv, "=")
			if !ok || k == "" {
				return opts, fmt.Errorf("invalid --query %q, expected key=value", kv)
			}
			opts.Query.Add(k, v)
		}
	}

	if len(callHeaders) > 0 {
		opts.Headers = http.Header{}
		for _, h := range callHeaders {
			k, v, ok := strings.Cut(h, ":")
			if !ok || strings.TrimSpace(k) == "" {
				return opts, fmt.Errorf("invalid --header %q, expected 'Name: value'", h)
			}
			opts.Headers.Add(strings.TrimSpace(k), strings.TrimSpace(v))
		}
	}
	return opts, nil
}

// readData resolves --data: inline JSON, @path or @- for stdin.
func readData(data string, stdin io.Reader) ([]byte, error) {
	switch {
	case data == "":
		return nil, nil
	case data == "@-":
		return io.ReadAll(stdin)
	case strings.HasPrefix(data, "@"):
		return os.ReadFile(strings.TrimPrefix(data, "@"))
	default:
		return []byte(data), nil
	}
}

// printBody indents JSON bodies and prints anything else verbatim.
func printBody(w io.Writer, body []byte) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	var out bytes.Buffer
	if err := json.Indent(&out, body, "", "  "); err != nil {
		_, err = fmt.Fprintln(w, string(body))
		return err
	}
	out.WriteByte('\n')
	_, err := out.WriteTo(w)
	return err
}
