// Package filestore persists entities as JSON files in one directory per
// collection:
//
//	<root>/<collection>/<escaped key>.json
//
// Escaped keys longer than 180 bytes are cut and suffixed with "~" and a
// digest of the full key; Keys then reads the key back from the file.
//
// Files hold the sparse entity with sorted keys and two-space indentation so
// they diff cleanly under version control. Writes go to a temporary sibling
// and are renamed into place. The backend does not implement
// store.EdgeStore.
package filestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/hack-pad/hackpadfs"
	osfs "github.com/hack-pad/hackpadfs/os"

	"github.com/zero-day-ai/thinggraph/identity"
	"github.com/zero-day-ai/thinggraph/logging"
	"github.com/zero-day-ai/thinggraph/schema"
	"github.com/zero-day-ai/thinggraph/store"
	"github.com/zero-day-ai/thinggraph/thing"
	"github.com/zero-day-ai/thinggraph/thingerr"
)

const (
	component  = "filestore"
	ext        = ".json"
	tmpMarker  = ".tmp-"
	hashMarker = "~"
	maxEscaped = 180
)

// Store is a bucketed file store on a hackpadfs file system.
type Store struct {
	fs       hackpadfs.FS
	registry *schema.Registry
	logger   *logging.Logger
	dirPerm  hackpadfs.FileMode
	filePerm hackpadfs.FileMode
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// WithPermissions sets the modes for created directories and files.
func WithPermissions(dir, file hackpadfs.FileMode) Option {
	return func(s *Store) {
		s.dirPerm = dir
		s.filePerm = file
	}
}

// New creates a store rooted at the top of fsys. fsys must support
// MkdirAll, OpenFile, Rename and Remove (the os and mem file systems do).
func New(fsys hackpadfs.FS, reg *schema.Registry, opts ...Option) *Store {
	s := &Store{
		fs:       fsys,
		registry: reg,
		dirPerm:  0o755,
		filePerm: 0o644,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrNop(s.logger).With("component", component)
	return s
}

// Open creates a store rooted at an OS directory, creating it if needed.
func Open(root string, reg *schema.Registry, opts ...Option) (*Store, error) {
	fsys := osfs.NewFS()
	p, err := fsys.FromOSPath(root)
	if err != nil {
		return nil, thingerr.New(component, "open", thingerr.CodeConfig,
			fmt.Sprintf("invalid root %q", root)).WithCause(err)
	}
	if err := hackpadfs.MkdirAll(fsys, p, 0o755); err != nil {
		return nil, thingerr.Storage(component, "open", err)
	}
	sub, err := fsys.Sub(p)
	if err != nil {
		return nil, thingerr.Storage(component, "open", err)
	}
	return New(sub, reg, opts...), nil
}

var (
	_ store.Store  = (*Store)(nil)
	_ store.Pinger = (*Store)(nil)
)

// fileName is the escaped key plus ext. Escaped keys longer than
// maxEscaped are cut and suffixed with hashMarker and a digest of the full
// key, keeping names and their temporary siblings under NAME_MAX. The
// marker never occurs in an escaped key.
func fileName(key string) string {
	esc := store.EscapeKey(key)
	if len(esc) <= maxEscaped {
		return esc + ext
	}
	cut := maxEscaped
	// do not split a %XX escape
	if i := strings.LastIndexByte(esc[cut-2:cut], '%'); i >= 0 {
		cut -= 2 - i
	}
	return esc[:cut] + hashMarker + identity.Hash(key) + ext
}

func filePath(collection, key string) string {
	return path.Join(collection, fileName(key))
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, id string) (*thing.Thing, error) {
	if err := store.CheckContext(ctx, component, "get"); err != nil {
		return nil, err
	}
	locs, err := store.Candidates(s.registry, id)
	if err != nil {
		return nil, err
	}
	for _, loc := range locs {
		t, err := s.read(filePath(loc.Collection, loc.Key))
		if errors.Is(err, hackpadfs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		// another tag sharing the collection may own the same key
		if t.ID == id {
			return t, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) read(p string) (*thing.Thing, error) {
	raw, err := hackpadfs.ReadFile(s.fs, p)
	if err != nil {
		if errors.Is(err, hackpadfs.ErrNotExist) {
			return nil, err
		}
		return nil, thingerr.Storage(component, "read", err)
	}
	var t thing.Thing
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, store.Malformed(component, "read", err, map[string]any{"path": p})
	}
	return &t, nil
}

// Set implements store.Store. A file at the target path holding a different
// canonical ID is reported as a storage collision and left untouched.
func (s *Store) Set(ctx context.Context, t thing.Thing) error {
	if err := store.CheckContext(ctx, component, "set"); err != nil {
		return err
	}
	loc, err := store.Route(s.registry, t)
	if err != nil {
		return err
	}
	raw, err := encode(t)
	if err != nil {
		return thingerr.Storage(component, "set", err)
	}
	p := filePath(loc.Collection, loc.Key)

	current, err := hackpadfs.ReadFile(s.fs, p)
	switch {
	case err == nil:
		if bytes.Equal(current, raw) {
			return nil
		}
		var existing thing.Thing
		if err := json.Unmarshal(current, &existing); err == nil && existing.ID != t.ID {
			return thingerr.Newf(component, "set", thingerr.CodeStorage,
				"%s already holds %q", p, existing.ID).
				WithDetails(map[string]any{"path": p, "id": t.ID, "existing_id": existing.ID})
		}
	case !errors.Is(err, hackpadfs.ErrNotExist):
		return thingerr.Storage(component, "set", err)
	}

	if err := hackpadfs.MkdirAll(s.fs, loc.Collection, s.dirPerm); err != nil {
		return thingerr.Storage(component, "set", err)
	}
	if err := s.writeAtomic(p, raw); err != nil {
		return thingerr.Storage(component, "set", err)
	}
	s.logger.Debug("entity written", "id", t.ID, "path", p)
	return nil
}

func (s *Store) writeAtomic(p string, raw []byte) error {
	tmp := p + tmpMarker + uuid.NewString()
	if err := hackpadfs.WriteFullFile(s.fs, tmp, raw, s.filePerm); err != nil {
		_ = hackpadfs.Remove(s.fs, tmp)
		return err
	}
	if err := hackpadfs.Rename(s.fs, tmp, p); err != nil {
		_ = hackpadfs.Remove(s.fs, tmp)
		return err
	}
	return nil
}

func encode(t thing.Thing) ([]byte, error) {
	raw, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(raw, '\n'), nil
}

// Exists implements store.Store.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	_, err := s.Get(ctx, id)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, store.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// Ping implements store.Pinger by checking that the root is a directory.
func (s *Store) Ping(ctx context.Context) error {
	if err := store.CheckContext(ctx, component, "ping"); err != nil {
		return err
	}
	info, err := hackpadfs.Stat(s.fs, ".")
	if err != nil {
		return thingerr.Storage(component, "ping", err)
	}
	if !info.IsDir() {
		return thingerr.New(component, "ping", thingerr.CodeStorage, "store root is not a directory")
	}
	return nil
}

// Close implements store.Store.
func (s *Store) Close(context.Context) error {
	return nil
}

// Keys returns the unescaped keys stored in a collection, sorted. A missing
// collection has no keys.
func (s *Store) Keys(ctx context.Context, collection string) ([]string, error) {
	if err := store.CheckContext(ctx, component, "keys"); err != nil {
		return nil, err
	}
	entries, err := hackpadfs.ReadDir(s.fs, collection)
	if errors.Is(err, hackpadfs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, thingerr.Storage(component, "keys", err)
	}

	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ext) || strings.Contains(name, tmpMarker) {
			continue
		}
		if strings.Contains(name, hashMarker) {
			key, err := s.keyFromContents(path.Join(collection, name))
			if err != nil {
				return nil, err
			}
			keys = append(keys, key)
			continue
		}
		key, err := store.UnescapeKey(strings.TrimSuffix(name, ext))
		if err != nil {
			s.logger.Warn("skipping file with malformed name", "collection", collection, "file", name)
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// keyFromContents reads the key of a file whose name was shortened.
func (s *Store) keyFromContents(p string) (string, error) {
	t, err := s.read(p)
	if err != nil {
		if errors.Is(err, hackpadfs.ErrNotExist) {
			return "", thingerr.Storage(component, "keys", err)
		}
		return "", err
	}
	_, key, err := identity.Parse(t.ID)
	if err != nil {
		return "", store.Malformed(component, "keys", err, map[string]any{"path": p})
	}
	return key, nil
}

// Export writes a collection as newline-delimited JSON, one compact entity
// per line in key order, and returns the number of lines written.
func (s *Store) Export(ctx context.Context, collection string, w io.Writer) (int, error) {
	keys, err := s.Keys(ctx, collection)
	if err != nil {
		return 0, err
	}
	var line bytes.Buffer
	for i, key := range keys {
		if err := store.CheckContext(ctx, component, "export"); err != nil {
			return i, err
		}
		p := filePath(collection, key)
		raw, err := hackpadfs.ReadFile(s.fs, p)
		if err != nil {
			return i, thingerr.Storage(component, "export", err)
		}
		line.Reset()
		if err := json.Compact(&line, raw); err != nil {
			return i, thingerr.Storage(component, "export", err)
		}
		line.WriteByte('\n')
		if _, err := w.Write(line.Bytes()); err != nil {
			return i, thingerr.Storage(component, "export", err)
		}
	}
	return len(keys), nil
}
