// Package cache stores expansion output on disk keyed by the content of the
// input file and everything that affects how it expands.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"macroforge/internal/diag"
	"macroforge/internal/source"
)

// Current schema version - increment when Entry format changes
const schemaVersion uint16 = 2

// Digest is a SHA-256 cache key.
type Digest [32]byte

func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// Key hashes src together with strings such as the config
// fingerprint and the registered macro set.
func Key(src []byte, parts ...string) Digest {
	h := sha256.New()
	fmt.Fprintf(h, "macroforge-cache-v%d\x00", schemaVersion)
	for _, c := range parts {
		h.Write([]byte(c))
		h.Write([]byte{0})
	}
	h.Write(src)
	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}

// Entry is one cached expansion. Spans are stored without file ids since
// those are only meaningful inside one FileSet.
type Entry struct {
	Schema      uint16
	Runtime     string
	Types       string
	HasTypes    bool
	Changed     bool
	Diagnostics []Diagnostic
	Created     int64
}

// Diagnostic is a diag.Diagnostic with file-relative spans.
type Diagnostic struct {
	Severity uint8
	Code     uint16
	Message  string
	Span     *Span
	Notes    []Note
	Help     string
}

type Note struct {
	Span *Span
	Msg  string
}

type Span struct {
	Start uint32
	End   uint32
}

// FromDiagnostics strips file ids for storage.
func FromDiagnostics(ds []diag.Diagnostic) []Diagnostic {
	if len(ds) == 0 {
		return nil
	}
	out := make([]Diagnostic, len(ds))
	for i, d := range ds {
		out[i] = Diagnostic{
			Severity: uint8(d.Severity),
			Code:     uint16(d.Code),
			Message:  d.Message,
			Span:     toSpan(d.Primary),
			Help:     d.Help,
		}
		for _, n := range d.Notes {
			out[i].Notes = append(out[i].Notes, Note{Span: toSpan(n.Span), Msg: n.Msg})
		}
	}
	return out
}

// ToDiagnostics restores diagnostics against file.
func ToDiagnostics(ds []Diagnostic, file source.FileID) []diag.Diagnostic {
	if len(ds) == 0 {
		return nil
	}
	out := make([]diag.Diagnostic, len(ds))
	for i, d := range ds {
		out[i] = diag.Diagnostic{
			Severity: diag.Severity(d.Severity),
			Code:     diag.Code(d.Code),
			Message:  d.Message,
			Primary:  fromSpan(d.Span, file),
			Help:     d.Help,
		}
		for _, n := range d.Notes {
			out[i].Notes = append(out[i].Notes, diag.Note{Span: fromSpan(n.Span, file), Msg: n.Msg})
		}
	}
	return out
}

func toSpan(sp *source.Span) *Span {
	if sp == nil {
		return nil
	}
	return &Span{Start: sp.Start, End: sp.End}
}

func fromSpan(sp *Span, file source.FileID) *source.Span {
	if sp == nil {
		return nil
	}
	return &source.Span{File: file, Start: sp.Start, End: sp.End}
}

// Cache keeps entries as zstd-compressed msgpack files under one directory.
// Thread-safe for concurrent access.
type Cache struct {
	mu  sync.RWMutex
	dir string
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// New returns a cache rooted at dir, creating it when needed.
func New(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	return &Cache{dir: dir, enc: enc, dec: dec}, nil
}

// Open initializes a cache at the standard per-user location.
func Open(app string) (*Cache, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		base = filepath.Join(home, ".cache")
	}
	return New(filepath.Join(base, app))
}

// Dir returns the cache root.
func (c *Cache) Dir() string {
	if c == nil {
		return ""
	}
	return c.dir
}

func (c *Cache) pathFor(key Digest) string {
	hexKey := key.String()
	// первые два символа ключа как подкаталог, чтобы не держать всё в одной папке
	return filepath.Join(c.dir, "expand", hexKey[:2], hexKey+".mp.zst")
}

// Put serializes and writes an entry.
func (c *Cache) Put(key Digest, e *Entry) (err error) {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.pathFor(key)
	if err = os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(f.Name())
		}
	}()

	e.Schema = schemaVersion
	if e.Created == 0 {
		e.Created = time.Now().Unix()
	}
	raw, err := msgpack.Marshal(e)
	if err != nil {
		return err
	}
	if _, err = f.Write(c.enc.EncodeAll(raw, nil)); err != nil {
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	// Атомарная замена
	return os.Rename(f.Name(), p)
}

// Get reads an entry. Entries written by another schema version are misses.
func (c *Cache) Get(key Digest) (*Entry, bool, error) {
	if c == nil {
		return nil, false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	data, err := os.ReadFile(c.pathFor(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	raw, err := c.dec.DecodeAll(data, nil)
	if err != nil {
		return nil, false, fmt.Errorf("decompress cache entry %s: %w", key, err)
	}
	var e Entry
	if err := msgpack.Unmarshal(raw, &e); err != nil {
		return nil, false, fmt.Errorf("decode cache entry %s: %w", key, err)
	}
	if e.Schema != schemaVersion {
		return nil, false, nil
	}
	return &e, true, nil
}

// DropAll invalidates the cache.
func (c *Cache) DropAll() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.dir + ".old-" + time.Now().Format("20060102150405")
	if err := os.Rename(c.dir, old); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}
	return os.RemoveAll(old)
}
