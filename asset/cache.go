package asset

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	haven "github.com/AivinJoy/haven-daw"
)

type (
	// Cache holds at most one Source per canonical path, reference counted
	// by the live clips and undo records that use it. Decoding happens on
	// the caller thread; concurrent loads of the same path decode once and
	// the second caller observes the first's completed Source.
	Cache struct {
		registry *Registry

		mtx     sync.Mutex
		entries map[string]*entry
		loading map[string]chan struct{}
	}

	entry struct {
		source *Source
		refs   atomic.Int64
	}

	// Handle is a counted reference to a cached Source. Release it exactly
	// once when the referencing clip or undo record dies.
	Handle struct {
		entry *entry
	}
)

// NewCache returns a cache decoding through the given registry.
func NewCache(registry *Registry) *Cache {
	return &Cache{
		registry: registry,
		entries:  make(map[string]*entry),
		loading:  make(map[string]chan struct{}),
	}
}

// Source returns the underlying source, or nil for a zero Handle.
func (h Handle) Source() *Source {
	if h.entry == nil {
		return nil
	}
	return h.entry.source
}

// Retain returns an additional counted reference to the same source.
func (h Handle) Retain() Handle {
	if h.entry != nil {
		h.entry.refs.Add(1)
	}
	return h
}

// Release drops the reference. The source stays cached until the next
// EvictUnreferenced call.
func (h Handle) Release() {
	if h.entry != nil {
		h.entry.refs.Add(-1)
	}
}

// Canonical resolves the cache key for a path: absolute, symlinks resolved
// when possible.
func Canonical(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	return abs
}

// GetOrLoad returns a handle to the source for path, decoding it first if it
// is not cached yet.
func (c *Cache) GetOrLoad(path string) (Handle, error) {
	key := Canonical(path)
	for {
		c.mtx.Lock()
		if e, ok := c.entries[key]; ok {
			e.refs.Add(1)
			c.mtx.Unlock()
			return Handle{entry: e}, nil
		}
		if done, ok := c.loading[key]; ok {
			c.mtx.Unlock()
			<-done
			continue
		}
		done := make(chan struct{})
		c.loading[key] = done
		c.mtx.Unlock()

		source, err := c.load(key)

		c.mtx.Lock()
		delete(c.loading, key)
		close(done)
		if err != nil {
			c.mtx.Unlock()
			return Handle{}, err
		}
		e := &entry{source: source}
		e.refs.Add(1)
		c.entries[key] = e
		c.mtx.Unlock()
		return Handle{entry: e}, nil
	}
}

func (c *Cache) load(key string) (*Source, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(key)), ".")
	dec, ok := c.registry.Get(ext)
	if !ok {
		return nil, haven.Errorf(haven.ErrDecode, "no decoder for %q files", ext)
	}
	f, err := os.Open(key)
	if err != nil {
		return nil, haven.Errorf(haven.ErrDecode, "open %s: %v", key, err)
	}
	defer f.Close()
	stream, err := dec.Decode(f)
	if err != nil {
		return nil, haven.Errorf(haven.ErrDecode, "decode %s: %v", key, err)
	}
	defer stream.Close()
	samples, err := decodeAll(stream)
	if err != nil {
		return nil, haven.Errorf(haven.ErrDecode, "read %s: %v", key, err)
	}
	if len(samples) == 0 {
		return nil, haven.Errorf(haven.ErrDecode, "%s: %v", key, ErrEmptySource)
	}
	return &Source{
		Path:       key,
		SampleRate: stream.SampleRate(),
		Channels:   stream.Channels(),
		Samples:    samples,
		Summary:    computeWaveform(samples, stream.Channels(), stream.SampleRate(), WaveformBinsPerSec),
	}, nil
}

// Peek returns a handle to an already cached source without loading.
func (c *Cache) Peek(path string) (Handle, bool) {
	key := Canonical(path)
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if e, ok := c.entries[key]; ok {
		e.refs.Add(1)
		return Handle{entry: e}, true
	}
	return Handle{}, false
}

// EvictUnreferenced drops every source whose reference count is zero.
// Called after each committed command.
func (c *Cache) EvictUnreferenced() {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	for key, e := range c.entries {
		if e.refs.Load() <= 0 {
			delete(c.entries, key)
		}
	}
}

// Len returns the number of cached sources.
func (c *Cache) Len() int {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return len(c.entries)
}
