package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// codec pairs the decode/encode functions for one on-disk format. The
// format follows the file extension, nothing sniffs contents.
type codec struct {
	decode func(data []byte, v interface{}) error
	encode func(v interface{}) ([]byte, error)
}

func codecFor(path string) (codec, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return codec{
			decode: json.Unmarshal,
			encode: func(v interface{}) ([]byte, error) {
				return json.MarshalIndent(v, "", "  ")
			},
		}, nil
	case ".toml":
		return codec{decode: toml.Unmarshal, encode: tomlMarshal}, nil
	case ".yaml", ".yml":
		return codec{decode: yaml.Unmarshal, encode: yaml.Marshal}, nil
	default:
		return codec{}, fmt.Errorf("unsupported store format %q (want .json, .toml, .yaml or .yml)", filepath.Ext(path))
	}
}

func tomlMarshal(v interface{}) ([]byte, error) {
	var sb strings.Builder
	if err := toml.NewEncoder(&sb).Encode(v); err != nil {
		return nil, err
	}
	return []byte(sb.String()), nil
}

// FileStore serves links from a flat file of token = url pairs. Changes are
// detected by polling the file's size and modification time, or, in watch
// mode, by an fsnotify watcher flipping a dirty flag.
type FileStore struct {
	path  string
	codec codec
	log   *slog.Logger

	links map[string]string

	// change marker of the last successful load
	modTime time.Time
	size    int64

	watch *fileWatcher
}

// NewFile wires a store to path without touching the disk; the management
// commands use it so that editing a file that does not exist yet creates
// it. The server wants OpenFile instead.
func NewFile(path string, log *slog.Logger) (*FileStore, error) {
	c, err := codecFor(path)
	if err != nil {
		return nil, err
	}
	return &FileStore{
		path:  path,
		codec: c,
		log:   log,
		links: map[string]string{},
	}, nil
}

// OpenFile loads path immediately. A store that cannot load at startup is a
// configuration problem and is reported like one, before the listener ever
// binds.
func OpenFile(path string, log *slog.Logger) (*FileStore, error) {
	s, err := NewFile(path, log)
	if err != nil {
		return nil, err
	}
	if err := s.Refresh(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) HasChanged() (bool, error) {
	if s.watch != nil {
		return s.watch.dirty.Swap(false), nil
	}

	info, err := os.Stat(s.path)
	if err != nil {
		return false, fmt.Errorf("stat store file: %w", err)
	}
	return !info.ModTime().Equal(s.modTime) || info.Size() != s.size, nil
}

func (s *FileStore) Refresh() error {
	// stat before read: if a writer replaces the file in between, the stale
	// marker forces one spurious reload later instead of missing one
	info, err := os.Stat(s.path)
	if err != nil {
		return fmt.Errorf("stat store file: %w", err)
	}

	links, err := s.load()
	if err != nil {
		if s.watch != nil {
			// the change is real and still unserved, keep the flag up so
			// the next connection retries
			s.watch.dirty.Store(true)
		}
		return err
	}

	s.links = links
	s.modTime = info.ModTime()
	s.size = info.Size()
	return nil
}

func (s *FileStore) Len() int {
	return len(s.links)
}

func (s *FileStore) Get(token string) (string, bool) {
	url, ok := s.links[token]
	return url, ok
}

// Close stops the watcher, if one was started.
func (s *FileStore) Close() error {
	if s.watch != nil {
		return s.watch.close()
	}
	return nil
}

func (s *FileStore) load() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read store file: %w", err)
	}

	links := make(map[string]string)
	if err := s.codec.decode(data, &links); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(s.path), err)
	}
	return links, nil
}

// Put registers token under url, creating the file if it does not exist.
func (s *FileStore) Put(token, url string) error {
	links, err := s.Entries()
	if err != nil {
		return err
	}
	links[token] = url
	return s.writeAll(links)
}

// Delete removes token. Deleting an unknown token is an error.
func (s *FileStore) Delete(token string) error {
	links, err := s.Entries()
	if err != nil {
		return err
	}
	if _, ok := links[token]; !ok {
		return fmt.Errorf("no link named %q", token)
	}
	delete(links, token)
	return s.writeAll(links)
}

// Entries reads the file fresh rather than trusting the snapshot; the
// management commands run in their own process and must see the disk.
func (s *FileStore) Entries() (map[string]string, error) {
	links, err := s.load()
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	return links, nil
}

// EnsureExists writes an empty mapping if the file is missing, leaving an
// existing file alone.
func (s *FileStore) EnsureExists() error {
	if _, err := os.Stat(s.path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return s.writeAll(map[string]string{})
}

// writeAll replaces the file via a temp file and rename, so a reader never
// sees a half-written mapping.
func (s *FileStore) writeAll(links map[string]string) error {
	data, err := s.codec.encode(links)
	if err != nil {
		return fmt.Errorf("encode store file: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write store file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace store file: %w", err)
	}
	return nil
}
