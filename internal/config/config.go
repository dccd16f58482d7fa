// Package config implements the engine's live, mutable settings: CONFIG
// GET/SET's option surface, each option independently type-checked and
// bounds-checked, with changes taking effect on the next read by whichever
// background loop consults it (no restart required).
package config

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redlite/redlite/internal/expiry"
	"github.com/redlite/redlite/internal/pubsub"
	"github.com/redlite/redlite/internal/rlerr"
)

// Defaults mirror the values documented in the operator-facing option list.
const (
	defaultMaxMemoryBytes        = 0 // 0 == unlimited
	defaultMaxDiskBytes          = 0
	defaultMaxMemoryPolicy       = expiry.NoEviction
	defaultPersistAccessTracking = true
	defaultAccessFlushInterval   = 5 * time.Second
	defaultAutovacuum            = true
	defaultAutovacuumInterval    = 30 * time.Second
	defaultHistoryRetentionDays  = 30
	defaultRequirePass           = ""
)

// Config is the process-wide live settings store. All fields are guarded by
// mu so CONFIG SET from one connection is immediately visible to every
// other goroutine, including the maintenance loops in internal/expiry.
type Config struct {
	mu sync.RWMutex

	maxMemoryBytes        int64
	maxDiskBytes          int64
	maxMemoryPolicy       expiry.Policy
	persistAccessTracking bool
	accessFlushInterval   time.Duration
	autovacuum            bool
	autovacuumInterval    time.Duration
	historyRetentionDays  int64
	requirePass           string
}

// New returns a Config seeded with the documented defaults.
func New() *Config {
	return &Config{
		maxMemoryBytes:        defaultMaxMemoryBytes,
		maxDiskBytes:          defaultMaxDiskBytes,
		maxMemoryPolicy:       defaultMaxMemoryPolicy,
		persistAccessTracking: defaultPersistAccessTracking,
		accessFlushInterval:   defaultAccessFlushInterval,
		autovacuum:            defaultAutovacuum,
		autovacuumInterval:    defaultAutovacuumInterval,
		historyRetentionDays:  defaultHistoryRetentionDays,
		requirePass:           defaultRequirePass,
	}
}

// RequirePass returns the connection password, empty meaning AUTH is not
// required.
func (c *Config) RequirePass() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.requirePass
}

// --- expiry.Settings -------------------------------------------------------

func (c *Config) AccessFlushInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessFlushInterval
}

func (c *Config) AutovacuumEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.autovacuum
}

func (c *Config) AutovacuumInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.autovacuumInterval
}

func (c *Config) MaxMemoryBytes() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.maxMemoryBytes
}

func (c *Config) MaxDiskBytes() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.maxDiskBytes
}

func (c *Config) EvictionPolicy() expiry.Policy {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.maxMemoryPolicy
}

func (c *Config) PersistAccessTracking() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.persistAccessTracking
}

func (c *Config) HistoryRetentionDays() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.historyRetentionDays
}

var validPolicies = map[string]expiry.Policy{
	string(expiry.NoEviction):     expiry.NoEviction,
	string(expiry.AllKeysLRU):     expiry.AllKeysLRU,
	string(expiry.AllKeysLFU):     expiry.AllKeysLFU,
	string(expiry.AllKeysRandom):  expiry.AllKeysRandom,
	string(expiry.VolatileLRU):    expiry.VolatileLRU,
	string(expiry.VolatileLFU):    expiry.VolatileLFU,
	string(expiry.VolatileRandom): expiry.VolatileRandom,
	string(expiry.VolatileTTL):    expiry.VolatileTTL,
}

// entry describes one CONFIG key's get/set behavior.
type entry struct {
	get func(c *Config) string
	set func(c *Config, value string) error
}

var registry = map[string]entry{
	"maxmemory": {
		get: func(c *Config) string { return strconv.FormatInt(c.MaxMemoryBytes(), 10) },
		set: func(c *Config, v string) error {
			n, err := parseNonNegative(v)
			if err != nil {
				return err
			}
			c.mu.Lock()
			c.maxMemoryBytes = n
			c.mu.Unlock()
			return nil
		},
	},
	"maxdisk": {
		get: func(c *Config) string { return strconv.FormatInt(c.MaxDiskBytes(), 10) },
		set: func(c *Config, v string) error {
			n, err := parseNonNegative(v)
			if err != nil {
				return err
			}
			c.mu.Lock()
			c.maxDiskBytes = n
			c.mu.Unlock()
			return nil
		},
	},
	"maxmemory-policy": {
		get: func(c *Config) string { return string(c.EvictionPolicy()) },
		set: func(c *Config, v string) error {
			p, ok := validPolicies[strings.ToLower(v)]
			if !ok {
				return rlerr.Valuef("invalid maxmemory-policy %q", v)
			}
			c.mu.Lock()
			c.maxMemoryPolicy = p
			c.mu.Unlock()
			return nil
		},
	},
	"persist-access-tracking": {
		get: func(c *Config) string { return boolString(c.PersistAccessTracking()) },
		set: func(c *Config, v string) error {
			b, err := parseBool(v)
			if err != nil {
				return err
			}
			c.mu.Lock()
			c.persistAccessTracking = b
			c.mu.Unlock()
			return nil
		},
	},
	"access-flush-interval": {
		get: func(c *Config) string { return strconv.FormatInt(int64(c.AccessFlushInterval()/time.Millisecond), 10) },
		set: func(c *Config, v string) error {
			ms, err := parsePositive(v)
			if err != nil {
				return err
			}
			c.mu.Lock()
			c.accessFlushInterval = time.Duration(ms) * time.Millisecond
			c.mu.Unlock()
			return nil
		},
	},
	"autovacuum": {
		get: func(c *Config) string { return boolString(c.AutovacuumEnabled()) },
		set: func(c *Config, v string) error {
			b, err := parseBool(v)
			if err != nil {
				return err
			}
			c.mu.Lock()
			c.autovacuum = b
			c.mu.Unlock()
			return nil
		},
	},
	"autovacuum-interval": {
		get: func(c *Config) string { return strconv.FormatInt(int64(c.AutovacuumInterval()/time.Millisecond), 10) },
		set: func(c *Config, v string) error {
			ms, err := parsePositive(v)
			if err != nil {
				return err
			}
			c.mu.Lock()
			c.autovacuumInterval = time.Duration(ms) * time.Millisecond
			c.mu.Unlock()
			return nil
		},
	},
	"history-retention-days": {
		get: func(c *Config) string { return strconv.FormatInt(c.HistoryRetentionDays(), 10) },
		set: func(c *Config, v string) error {
			n, err := parseNonNegative(v)
			if err != nil {
				return err
			}
			c.mu.Lock()
			c.historyRetentionDays = n
			c.mu.Unlock()
			return nil
		},
	},
	"requirepass": {
		get: func(c *Config) string { return c.RequirePass() },
		set: func(c *Config, v string) error {
			c.mu.Lock()
			c.requirePass = v
			c.mu.Unlock()
			return nil
		},
	},
}

func parseNonNegative(v string) (int64, error) {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, rlerr.Valuef("invalid numeric value %q", v)
	}
	return n, nil
}

func parsePositive(v string) (int64, error) {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return 0, rlerr.Valuef("invalid positive numeric value %q", v)
	}
	return n, nil
}

func parseBool(v string) (bool, error) {
	switch strings.ToLower(v) {
	case "yes", "true", "1":
		return true, nil
	case "no", "false", "0":
		return false, nil
	default:
		return false, rlerr.Valuef("invalid boolean value %q", v)
	}
}

func boolString(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// Get implements CONFIG GET pattern: every registered key whose name
// matches the glob pattern, as name/value pairs.
func (c *Config) Get(pattern string) [][2]string {
	var out [][2]string
	for name, e := range registry {
		if pubsub.Match(pattern, name) {
			out = append(out, [2]string{name, e.get(c)})
		}
	}
	return out
}

// Set implements CONFIG SET for one key.
func (c *Config) Set(name, value string) error {
	e, ok := registry[strings.ToLower(name)]
	if !ok {
		return rlerr.New(rlerr.Unknown, "Unknown option or number of arguments for CONFIG SET - '%s'", name)
	}
	return e.set(c, value)
}
