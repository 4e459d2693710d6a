package store

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Store property keys.
const (
	KeyStoreClass            = "gaffer.store.class"
	KeySchemaClass           = "gaffer.store.schema.class"
	KeyStoreID               = "gaffer.store.id"
	KeyPropertiesClass       = "gaffer.store.properties.class"
	KeyOperationDeclarations = "gaffer.store.operation.declarations"
	KeyJobTrackerEnabled     = "gaffer.store.job.tracker.enabled"
	KeyJobExecutorThreads    = "gaffer.store.job.executor.threads"
	KeyDataDir               = "gaffer.store.data.dir"
	KeyFileReaders           = "gaffer.store.file.readers"
	KeyBadgerInMemory        = "gaffer.store.badger.inmemory"
	KeyBadgerSyncWrites      = "gaffer.store.badger.syncwrites"
	KeyCacheRedisURL         = "gaffer.cache.redis.url"
	KeyCacheTTL              = "gaffer.cache.ttl"
)

// Defaults for unset properties.
const (
	DefaultJobExecutorThreads = 50
	DefaultFileReaders        = 4
	DefaultSchemaClass        = "gaffer.schema"
)

// Properties is the flat key/value configuration of a store. It is loaded
// once, then frozen when a store is initialised with it.
//
// Example:
//
//	props, err := store.LoadProperties("store.yaml")
//	props.StoreClass()         // "badger"
//	props.JobExecutorThreads() // 50 unless set
type Properties struct {
	mu     sync.RWMutex
	values map[string]string
	frozen bool
}

// NewProperties returns properties holding pairs of key, value.
func NewProperties(pairs ...string) *Properties {
	p := &Properties{values: make(map[string]string)}
	for i := 0; i+1 < len(pairs); i += 2 {
		p.values[pairs[i]] = pairs[i+1]
	}
	return p
}

// LoadProperties reads a flat YAML (or JSON) map from path.
func LoadProperties(path string) (*Properties, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read store properties: %w", err)
	}
	defer f.Close()
	p, err := LoadPropertiesFrom(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// LoadPropertiesFrom reads a flat YAML (or JSON) map from r. Scalar values
// are kept as their string form.
func LoadPropertiesFrom(r io.Reader) (*Properties, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read store properties: %w", err)
	}
	raw := make(map[string]any)
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProperty, err)
	}
	p := NewProperties()
	for k, v := range raw {
		switch val := v.(type) {
		case nil:
			p.values[k] = ""
		case string:
			p.values[k] = val
		case []any:
			parts := make([]string, 0, len(val))
			for _, item := range val {
				parts = append(parts, fmt.Sprint(item))
			}
			p.values[k] = strings.Join(parts, ",")
		case map[string]any:
			return nil, fmt.Errorf("%w: %s must be a scalar", ErrInvalidProperty, k)
		default:
			p.values[k] = fmt.Sprint(val)
		}
	}
	return p, nil
}

// Get returns the value of key or "".
func (p *Properties) Get(key string) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.values[key]
}

// GetOr returns the value of key, or def when unset or empty.
func (p *Properties) GetOr(key, def string) string {
	if v := p.Get(key); v != "" {
		return v
	}
	return def
}

// Set sets key. It fails once the properties are frozen.
func (p *Properties) Set(key, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.frozen {
		return fmt.Errorf("%w: cannot set %s", ErrPropertiesFrozen, key)
	}
	p.values[key] = value
	return nil
}

// Freeze makes the properties read-only.
func (p *Properties) Freeze() {
	p.mu.Lock()
	p.frozen = true
	p.mu.Unlock()
}

// IsFrozen reports whether Freeze was called.
func (p *Properties) IsFrozen() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.frozen
}

// Clone returns an unfrozen copy.
func (p *Properties) Clone() *Properties {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := NewProperties()
	for k, v := range p.values {
		out.values[k] = v
	}
	return out
}

// Equal compares keys and values. The frozen state is ignored.
func (p *Properties) Equal(other *Properties) bool {
	if p == nil || other == nil {
		return p == other
	}
	a, b := p.Map(), other.Map()
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if w, ok := b[k]; !ok || w != v {
			return false
		}
	}
	return true
}

// Map returns a copy of the values.
func (p *Properties) Map() map[string]string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]string, len(p.values))
	for k, v := range p.values {
		out[k] = v
	}
	return out
}

// Keys returns the set keys, sorted.
func (p *Properties) Keys() []string {
	m := p.Map()
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// MarshalJSON encodes the values as a flat object with sorted keys.
func (p *Properties) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Map())
}

// UnmarshalJSON replaces the values. Frozen properties reject it.
func (p *Properties) UnmarshalJSON(data []byte) error {
	loaded, err := LoadPropertiesFrom(strings.NewReader(string(data)))
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.frozen {
		return ErrPropertiesFrozen
	}
	p.values = loaded.values
	return nil
}

// StoreClass is the backend class name.
func (p *Properties) StoreClass() string { return p.Get(KeyStoreClass) }

// SchemaClass is the schema implementation, DefaultSchemaClass when unset.
func (p *Properties) SchemaClass() string { return p.GetOr(KeySchemaClass, DefaultSchemaClass) }

// StoreID identifies the store instance.
func (p *Properties) StoreID() string { return p.Get(KeyStoreID) }

// PropertiesClass names the properties flavour. It is informational.
func (p *Properties) PropertiesClass() string { return p.Get(KeyPropertiesClass) }

// OperationDeclarationPaths returns the comma-joined declaration paths.
func (p *Properties) OperationDeclarationPaths() []string {
	return splitList(p.Get(KeyOperationDeclarations))
}

// AddOperationDeclarationPaths appends paths to the declaration list.
func (p *Properties) AddOperationDeclarationPaths(paths ...string) error {
	all := append(p.OperationDeclarationPaths(), paths...)
	return p.Set(KeyOperationDeclarations, strings.Join(all, ","))
}

// JobTrackerEnabled defaults to false.
func (p *Properties) JobTrackerEnabled() bool { return p.boolValue(KeyJobTrackerEnabled, false) }

// JobExecutorThreads defaults to DefaultJobExecutorThreads.
func (p *Properties) JobExecutorThreads() int {
	return p.intValue(KeyJobExecutorThreads, DefaultJobExecutorThreads)
}

// DataDir is where file-backed stores keep their data.
func (p *Properties) DataDir() string { return p.Get(KeyDataDir) }

// FileReaders bounds the concurrent partition readers of the file store.
func (p *Properties) FileReaders() int { return p.intValue(KeyFileReaders, DefaultFileReaders) }

// BadgerInMemory runs Badger without disk. Defaults to false.
func (p *Properties) BadgerInMemory() bool { return p.boolValue(KeyBadgerInMemory, false) }

// BadgerSyncWrites fsyncs every Badger write. Defaults to false.
func (p *Properties) BadgerSyncWrites() bool { return p.boolValue(KeyBadgerSyncWrites, false) }

// CacheRedisURL selects the Redis result cache when set.
func (p *Properties) CacheRedisURL() string { return p.Get(KeyCacheRedisURL) }

// CacheTTL expires exported results. Zero keeps them.
func (p *Properties) CacheTTL() time.Duration {
	if d, err := time.ParseDuration(p.Get(KeyCacheTTL)); err == nil {
		return d
	}
	return 0
}

// Validate checks that typed properties parse.
func (p *Properties) Validate() error {
	checks := []struct {
		key   string
		parse func(string) error
	}{
		{KeyJobTrackerEnabled, func(s string) error { _, err := strconv.ParseBool(s); return err }},
		{KeyBadgerInMemory, func(s string) error { _, err := strconv.ParseBool(s); return err }},
		{KeyBadgerSyncWrites, func(s string) error { _, err := strconv.ParseBool(s); return err }},
		{KeyJobExecutorThreads, positiveInt},
		{KeyFileReaders, positiveInt},
		{KeyCacheTTL, func(s string) error { _, err := time.ParseDuration(s); return err }},
	}
	for _, c := range checks {
		v := p.Get(c.key)
		if v == "" {
			continue
		}
		if err := c.parse(v); err != nil {
			return fmt.Errorf("%w: %s=%q: %v", ErrInvalidProperty, c.key, v, err)
		}
	}
	return nil
}

func positiveInt(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if n <= 0 {
		return fmt.Errorf("must be positive")
	}
	return nil
}

func (p *Properties) boolValue(key string, def bool) bool {
	if b, err := strconv.ParseBool(p.Get(key)); err == nil {
		return b
	}
	return def
}

func (p *Properties) intValue(key string, def int) int {
	if n, err := strconv.Atoi(p.Get(key)); err == nil && n > 0 {
		return n
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
