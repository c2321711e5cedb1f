// Package maintenance holds destructive operations used by tooling.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kailas-cloud/resdex/internal/db"
	domtype "github.com/kailas-cloud/resdex/internal/domain/resourcetype"
)

const deleteBatch = 500

type store interface {
	Scan(ctx context.Context, pattern string) ([]string, error)
	Del(ctx context.Context, keys ...string) error
	ListIndexes(ctx context.Context) ([]string, error)
	DropIndex(ctx context.Context, name string) error
}

// Report counts what a reset removed.
type Report struct {
	Indexes []string
	Keys    int
}

// Reset drops every resdex index and deletes all keys under prefix.
func Reset(ctx context.Context, s store, prefix string) (Report, error) {
	if prefix == "" {
		return Report{}, fmt.Errorf("refusing to reset without a key prefix")
	}
	var rep Report

	names, err := s.ListIndexes(ctx)
	if err != nil {
		return rep, fmt.Errorf("list indexes: %w", err)
	}
	for _, name := range names {
		if !ownedIndex(name) {
			continue
		}
		if err := s.DropIndex(ctx, name); err != nil && !errors.Is(err, db.ErrIndexNotFound) {
			return rep, fmt.Errorf("drop index %s: %w", name, err)
		}
		rep.Indexes = append(rep.Indexes, name)
	}

	keys, err := s.Scan(ctx, prefix+"*")
	if err != nil {
		return rep, fmt.Errorf("scan %s*: %w", prefix, err)
	}
	for start := 0; start < len(keys); start += deleteBatch {
		end := min(start+deleteBatch, len(keys))
		if err := s.Del(ctx, keys[start:end]...); err != nil {
			return rep, fmt.Errorf("delete keys: %w", err)
		}
		rep.Keys += end - start
	}
	return rep, nil
}

// ownedIndex matches kind indexes and per-type indexes.
func ownedIndex(name string) bool {
	for _, k := range []domtype.Kind{domtype.KindDocument, domtype.KindTerm} {
		if name == k.Plural() || strings.HasPrefix(name, k.Plural()+"_") {
			return true
		}
	}
	return false
}
