// SPDX-License-Identifier: ice License 1.0

// Package store persists computed metadata keyed by file content digest, absolute path and routine selection.
package store

import (
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/syndtr/goleveldb/leveldb"
	ldbstorage "github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/ice-blockchain/filemeta/model"
)

type (
	Config struct {
		// Path of the leveldb directory. Empty keeps everything in memory.
		Path string `yaml:"path" mapstructure:"path"`
	}
	Store struct {
		db   *leveldb.DB
		stor ldbstorage.Storage
	}
	// Entry is one stored mapping. ModTime and Mode describe the file when it was analysed, path dependent
	// values (extension MIME type, exiftool file attributes) are only valid while they still match.
	Entry struct {
		Stored   time.Time      `json:"stored"`
		ModTime  time.Time      `json:"modTime"`
		Metadata model.Metadata `json:"metadata"`
		Digest   string         `json:"digest"`
		Path     string         `json:"path"`
		Scope    string         `json:"scope"`
		Category string         `json:"category"`
		Mode     uint32         `json:"mode"`
	}
)

const keyPrefix = "md:"

func Open(cfg *Config) (*Store, error) {
	var (
		stor ldbstorage.Storage
		err  error
	)
	if cfg == nil || cfg.Path == "" {
		stor = ldbstorage.NewMemStorage()
	} else if stor, err = ldbstorage.OpenFile(cfg.Path, false); err != nil {
		return nil, errors.Wrapf(err, "failed to open leveldb storage %v", cfg.Path)
	}
	db, err := leveldb.Open(stor, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open leveldb")
	}

	return &Store{db: db, stor: stor}, nil
}

// Scope identifies which routines produced a mapping, results of different selections never collide.
func Scope(prefix, suffix string, routines []string) string {
	b, _ := json.Marshal([]any{prefix, suffix, routines}) //nolint:errchkjson // Strings only.

	return string(b)
}

func digestPrefix(digest string) []byte {
	k := make([]byte, 0, len(keyPrefix)+len(digest)+1)
	k = append(k, keyPrefix...)
	k = append(k, digest...)

	return append(k, ':')
}

func key(digest, path, scope string) []byte {
	k := digestPrefix(digest)
	k = append(k, path...)
	k = append(k, 0)

	return append(k, scope...)
}

// Get returns the entry stored for the file at path with the given content digest, or nil when there is none.
func (s *Store) Get(digest, path, scope string) (*Entry, error) {
	b, err := s.db.Get(key(digest, path, scope), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, nil //nolint:nilnil // Absence is not an error.
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read metadata of %v", digest)
	}
	var e Entry
	if err = json.Unmarshal(b, &e); err != nil {
		return nil, errors.Wrapf(err, "failed to decode stored metadata of %v", digest)
	}
	e.Metadata = model.FromMap(e.Metadata)

	return &e, nil
}

// Put stores e under its digest, path and scope, stamping it with the current time.
func (s *Store) Put(e *Entry) error {
	stored := *e
	stored.Stored = time.Now().UTC()
	b, err := json.Marshal(&stored)
	if err != nil {
		return errors.Wrapf(err, "failed to encode metadata of %v", e.Path)
	}

	return errors.Wrapf(s.db.Put(key(e.Digest, e.Path, e.Scope), b, nil), "failed to store metadata of %v", e.Path)
}

// Delete forgets every path and scope stored for digest.
func (s *Store) Delete(digest string) error {
	prefix := digestPrefix(digest)
	iter := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	batch := new(leveldb.Batch)
	for iter.Next() {
		batch.Delete(append([]byte(nil), iter.Key()...))
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return errors.Wrapf(err, "failed to list metadata of %v", digest)
	}

	return errors.Wrapf(s.db.Write(batch, nil), "failed to delete metadata of %v", digest)
}

func (s *Store) Close() error {
	return errors.CombineErrors(
		errors.Wrap(s.db.Close(), "failed to close leveldb"),
		errors.Wrap(s.stor.Close(), "failed to close leveldb storage"),
	)
}
