package redis

import (
	"context"
	"errors"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/resdex/internal/db"
)

// rootPath addresses a whole document in legacy path syntax, so JSON.GET
// returns the object itself rather than a one-element array.
const rootPath = "."

// JSONSet stores a JSON document at the given key and path.
func (s *Store) JSONSet(ctx context.Context, key, path string, data []byte) error {
	if path == "" {
		path = rootPath
	}
	cmd := s.b().Arbitrary("JSON.SET").Keys(key).Args(path, string(data)).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return jsonErr(db.OpJSONSet, err)
	}
	return nil
}

// JSONGet reads a document, or the given paths of it. With no paths the
// whole document is returned.
func (s *Store) JSONGet(ctx context.Context, key string, paths ...string) ([]byte, error) {
	if len(paths) == 0 {
		paths = []string{rootPath}
	}
	cmd := s.b().Arbitrary("JSON.GET").Keys(key).Args(paths...).Build()
	raw, err := s.do(ctx, cmd).ToString()
	switch {
	case rueidis.IsRedisNil(err):
		return nil, db.ErrKeyNotFound
	case err != nil:
		return nil, jsonErr(db.OpJSONGet, err)
	case raw == "":
		return nil, db.ErrKeyNotFound
	}
	return []byte(raw), nil
}

// jsonErr maps a missing JSON module onto ErrJSONUnavailable. Plain valkey
// needs valkey-json loaded for the media records.
func jsonErr(op string, err error) error {
	if isRedisErr(err, "unknown command") {
		return &db.Error{Op: op, Err: errors.Join(db.ErrJSONUnavailable, err)}
	}
	return wrapErr(op, err)
}
