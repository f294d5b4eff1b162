// Package stubcache keeps generated and verified stub programs on disk so
// repeated builds skip generation and self-checks.
package stubcache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"stubgen/internal/codegen"
	"stubgen/internal/layout"
	"stubgen/internal/masm"
)

// Current schema version - increment when Payload format changes
const schemaVersion uint16 = 1

// Digest identifies one generated program.
type Digest [32]byte

func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// Key hashes everything that determines the generated code: the cache and
// program schemas, the target, the stub and the generation options.
func Key(stub codegen.Stub, target layout.Target, opts codegen.Options) Digest {
	h := sha256.New()
	var buf [4]byte
	binary.BigEndian.PutUint16(buf[:2], schemaVersion)
	binary.BigEndian.PutUint16(buf[2:], masm.ProgramSchemaVersion)
	_, _ = h.Write(buf[:])
	_, _ = h.Write([]byte(target.String()))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(stub.String()))
	_, _ = h.Write([]byte{0})
	debug := byte(0)
	if opts.DebugCode {
		debug = 1
	}
	_, _ = h.Write([]byte{debug})
	tr := opts.TransitionRegisters()
	sc := opts.StringCharRegisters()
	for _, r := range []masm.Reg{
		tr.Value, tr.Key, tr.Receiver, tr.TargetMap, tr.Elements,
		tr.Length, tr.Dest, tr.Cursor, tr.Temp, tr.Spill,
		sc.String, sc.Index, sc.Result,
	} {
		_, _ = h.Write([]byte{byte(r)})
	}
	var out Digest
	copy(out[:], h.Sum(nil))
	return out
}

// Payload is one cache entry.
type Payload struct {
	// Schema version for safe invalidation when format changes
	Schema uint16

	Stub      string
	Target    string
	DebugCode bool

	// Program is the masm.EncodeProgram encoding.
	Program []byte

	// Scenarios counts the self-check scenarios the program passed.
	Scenarios int
	Created   time.Time
}

// NewPayload encodes p for storage.
func NewPayload(p *masm.Program, scenarios int) (*Payload, error) {
	data, err := masm.EncodeProgram(p)
	if err != nil {
		return nil, err
	}
	return &Payload{
		Schema:    schemaVersion,
		Stub:      p.Name,
		Target:    p.Target.Triple,
		DebugCode: p.DebugCode,
		Program:   data,
		Scenarios: scenarios,
		Created:   time.Now().UTC(),
	}, nil
}

// Decode returns the cached program.
func (p *Payload) Decode() (*masm.Program, error) {
	if p.Schema != schemaVersion {
		return nil, fmt.Errorf("stub cache schema %d, want %d", p.Schema, schemaVersion)
	}
	return masm.DecodeProgram(p.Program)
}

// Cache stores payloads by Digest on disk.
// Thread-safe for concurrent access.
type Cache struct {
	mu  sync.RWMutex
	dir string
}

// Open initializes a cache in dir, creating it if needed.
func Open(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, err
	}
	return &Cache{dir: dir}, nil
}

// OpenDefault opens the cache at the standard user location.
func OpenDefault(app string) (*Cache, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		base = filepath.Join(home, ".cache")
	}
	return Open(filepath.Join(base, app))
}

// Dir returns the cache directory.
func (c *Cache) Dir() string { return c.dir }

func (c *Cache) pathFor(key Digest) string {
	return filepath.Join(c.dir, "stubs", key.String()+".mp")
}

// Put serializes and writes a payload.
func (c *Cache) Put(key Digest, payload *Payload) (err error) {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	unlock, err := dirLock(c.dir, false)
	if err != nil {
		return err
	}
	defer unlock()

	p := c.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if rmErr := os.Remove(f.Name()); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) && err == nil {
			err = rmErr
		}
	}()

	if err := msgpack.NewEncoder(f).Encode(payload); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	// Atomic replace
	return os.Rename(f.Name(), p)
}

// Get reads a payload. A missing entry is not an error.
func (c *Cache) Get(key Digest) (*Payload, bool, error) {
	if c == nil {
		return nil, false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	unlock, err := dirLock(c.dir, false)
	if err != nil {
		return nil, false, err
	}
	defer unlock()

	f, err := os.Open(c.pathFor(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer f.Close()

	var out Payload
	if err := msgpack.NewDecoder(f).Decode(&out); err != nil {
		return nil, false, err
	}
	if out.Schema != schemaVersion {
		return nil, false, nil
	}
	return &out, true, nil
}

// DropAll invalidates the cache.
func (c *Cache) DropAll() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	unlock, err := dirLock(c.dir, true)
	if err != nil {
		return err
	}
	defer unlock()

	old := c.dir + ".old-" + time.Now().Format("20060102150405")
	if err := os.Rename(c.dir, old); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := os.RemoveAll(old); err != nil {
		return err
	}
	return os.MkdirAll(c.dir, 0o750)
}
