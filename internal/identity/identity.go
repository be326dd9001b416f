// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package identity resolves the user identifier sent with every request.
package identity

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/jeranaias/difychat/internal/storage"
)

// IDLength is the length of a generated identifier.
const IDLength = 20

// A generated identifier encodes idBytes bytes: up to hostBytes of the host
// name followed by random UUID bytes.
const (
	idBytes   = IDLength * 3 / 4
	hostBytes = 6
)

// KV is the persistence the resolver needs.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Resolve returns override when set, else the stored identifier, else a newly
// generated one that is stored for next time.
func Resolve(ctx context.Context, kv KV, override string) (string, error) {
	if override = strings.TrimSpace(override); override != "" {
		return override, nil
	}

	id, ok, err := kv.Get(ctx, storage.KeyUserID)
	if err != nil {
		return "", fmt.Errorf("read user id: %w", err)
	}
	if ok && id != "" {
		return id, nil
	}

	id = Generate()
	if err := kv.Set(ctx, storage.KeyUserID, id); err != nil {
		return "", fmt.Errorf("store user id: %w", err)
	}
	return id, nil
}

// Generate builds a fresh identifier: a host name prefix, so ids from one
// machine are recognizable in the service logs, then random bytes.
func Generate() string {
	host, _ := os.Hostname()
	host = host[:min(len(host), hostBytes)]

	u := uuid.New()
	buf := make([]byte, 0, idBytes)
	buf = append(buf, host...)
	buf = append(buf, u[:idBytes-len(buf)]...)
	return base64.RawURLEncoding.EncodeToString(buf)
}
