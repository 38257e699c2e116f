// Copyright (c) 2025 Acctl
// Licensed under the MIT License. See LICENSE file in the project root for details.

package backend

import (
	"context"
	"fmt"
)

// Do performs a call and decodes a successful body into T. A client or
// network/server failure is returned as a *Failure error.
func Do[T any](ctx context.Context, g *Gateway, target string, opts Options) (T, error) {
	var out T
	res, err := g.Call(ctx, target, opts)
	if err != nil {
		return out, err
	}
	if res.Failure != nil {
		return out, res.Failure
	}
	if err := res.Decode(&out); err != nil {
		return out, fmt.Errorf("decode %s response: %w", target, err)
	}
	return out, nil
}
