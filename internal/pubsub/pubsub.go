// Package pubsub implements the channel/pattern subscription registry for
// SUBSCRIBE/PSUBSCRIBE/PUBLISH. Subscriptions are keyed by session id rather
// than by a reference to the session itself, so the broker never holds a
// pointer back into connection state; a session's sink is whatever that
// session currently wants delivery to look like (see design note 2).
package pubsub

import (
	"strings"
	"sync"
)

// Message is one delivered publication.
type Message struct {
	Channel string // the channel the message was published to
	Pattern string // the pattern that matched, empty for a direct subscription
	Payload []byte
}

// Sink receives messages for one session. Implementations must not block:
// a session backs this with a buffered queue or a direct non-blocking
// write to its own connection.
type Sink func(Message)

// Broker is the process-wide pub/sub registry. It is safe for concurrent
// use by many session goroutines.
type Broker struct {
	mu       sync.RWMutex
	sinks    map[string]Sink                 // session id -> delivery sink
	channels map[string]map[string]struct{}  // channel -> set of session ids
	patterns map[string]map[string]struct{}  // pattern -> set of session ids
	subs     map[string]map[string]struct{}  // session id -> channels it holds
	psubs    map[string]map[string]struct{}  // session id -> patterns it holds
}

// New returns an empty Broker.
func New() *Broker {
	return &Broker{
		sinks:    make(map[string]Sink),
		channels: make(map[string]map[string]struct{}),
		patterns: make(map[string]map[string]struct{}),
		subs:     make(map[string]map[string]struct{}),
		psubs:    make(map[string]map[string]struct{}),
	}
}

// Register installs the delivery sink for a session. Must be called before
// the first Subscribe/PSubscribe from that session.
func (b *Broker) Register(sessionID string, sink Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks[sessionID] = sink
}

// Unregister drops every subscription held by a session and its sink,
// called when the owning connection closes.
func (b *Broker) Unregister(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[sessionID] {
		removeMember(b.channels, ch, sessionID)
	}
	for p := range b.psubs[sessionID] {
		removeMember(b.patterns, p, sessionID)
	}
	delete(b.subs, sessionID)
	delete(b.psubs, sessionID)
	delete(b.sinks, sessionID)
}

func removeMember(set map[string]map[string]struct{}, key, sessionID string) {
	members, ok := set[key]
	if !ok {
		return
	}
	delete(members, sessionID)
	if len(members) == 0 {
		delete(set, key)
	}
}

// Subscribe implements SUBSCRIBE, returning the session's total channel
// subscription count afterward (Redis replies with this running count per
// channel argument).
func (b *Broker) Subscribe(sessionID, channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.channels[channel] == nil {
		b.channels[channel] = make(map[string]struct{})
	}
	b.channels[channel][sessionID] = struct{}{}
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[string]struct{})
	}
	b.subs[sessionID][channel] = struct{}{}
	return len(b.subs[sessionID]) + len(b.psubs[sessionID])
}

// Unsubscribe implements UNSUBSCRIBE for one channel.
func (b *Broker) Unsubscribe(sessionID, channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	removeMember(b.channels, channel, sessionID)
	if b.subs[sessionID] != nil {
		delete(b.subs[sessionID], channel)
	}
	return len(b.subs[sessionID]) + len(b.psubs[sessionID])
}

// UnsubscribeAll implements UNSUBSCRIBE with no arguments: drop every plain
// channel subscription, returning the channels that were dropped.
func (b *Broker) UnsubscribeAll(sessionID string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var dropped []string
	for ch := range b.subs[sessionID] {
		removeMember(b.channels, ch, sessionID)
		dropped = append(dropped, ch)
	}
	delete(b.subs, sessionID)
	return dropped
}

// PSubscribe implements PSUBSCRIBE.
func (b *Broker) PSubscribe(sessionID, pattern string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.patterns[pattern] == nil {
		b.patterns[pattern] = make(map[string]struct{})
	}
	b.patterns[pattern][sessionID] = struct{}{}
	if b.psubs[sessionID] == nil {
		b.psubs[sessionID] = make(map[string]struct{})
	}
	b.psubs[sessionID][pattern] = struct{}{}
	return len(b.subs[sessionID]) + len(b.psubs[sessionID])
}

// PUnsubscribe implements PUNSUBSCRIBE for one pattern.
func (b *Broker) PUnsubscribe(sessionID, pattern string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	removeMember(b.patterns, pattern, sessionID)
	if b.psubs[sessionID] != nil {
		delete(b.psubs[sessionID], pattern)
	}
	return len(b.subs[sessionID]) + len(b.psubs[sessionID])
}

// PUnsubscribeAll implements PUNSUBSCRIBE with no arguments.
func (b *Broker) PUnsubscribeAll(sessionID string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var dropped []string
	for p := range b.psubs[sessionID] {
		removeMember(b.patterns, p, sessionID)
		dropped = append(dropped, p)
	}
	delete(b.psubs, sessionID)
	return dropped
}

// Publish implements PUBLISH, delivering to every direct subscriber of
// channel and every subscriber whose pattern matches it. It returns the
// number of sessions the message was handed to.
func (b *Broker) Publish(channel string, payload []byte) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	delivered := 0
	for sessionID := range b.channels[channel] {
		if sink, ok := b.sinks[sessionID]; ok {
			sink(Message{Channel: channel, Payload: payload})
			delivered++
		}
	}
	for pattern, members := range b.patterns {
		if !Match(pattern, channel) {
			continue
		}
		for sessionID := range members {
			if sink, ok := b.sinks[sessionID]; ok {
				sink(Message{Channel: channel, Pattern: pattern, Payload: payload})
				delivered++
			}
		}
	}
	return delivered
}

// SubscriptionCount reports a session's combined channel and pattern
// subscription count, used to re-derive the running total UNSUBSCRIBE and
// PUNSUBSCRIBE report per channel/pattern when dropping every subscription
// at once.
func (b *Broker) SubscriptionCount(sessionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[sessionID]) + len(b.psubs[sessionID])
}

// NumSub implements PUBSUB NUMSUB.
func (b *Broker) NumSub(channels []string) map[string]int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]int, len(channels))
	for _, ch := range channels {
		out[ch] = len(b.channels[ch])
	}
	return out
}

// NumPat implements PUBSUB NUMPAT.
func (b *Broker) NumPat() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.patterns)
}

// Channels implements PUBSUB CHANNELS, optionally filtered by glob pattern.
func (b *Broker) Channels(pattern string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []string
	for ch := range b.channels {
		if pattern == "" || Match(pattern, ch) {
			out = append(out, ch)
		}
	}
	return out
}

// Match reports whether s matches a Redis-style glob pattern: `*` matches
// any run of characters, `?` matches exactly one, `[...]` matches a
// character class (with `^` negation and `a-z` ranges), and `\` escapes the
// next character.
func Match(pattern, s string) bool {
	return matchGlob(pattern, s)
}

func matchGlob(pattern, s string) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case '*':
			for len(pattern) > 1 && pattern[1] == '*' {
				pattern = pattern[1:]
			}
			if len(pattern) == 1 {
				return true
			}
			for i := 0; i <= len(s); i++ {
				if matchGlob(pattern[1:], s[i:]) {
					return true
				}
			}
			return false
		case '?':
			if len(s) == 0 {
				return false
			}
			s = s[1:]
			pattern = pattern[1:]
		case '[':
			if len(s) == 0 {
				return false
			}
			end := strings.IndexByte(pattern, ']')
			if end == -1 {
				// malformed class: treat '[' literally
				if s[0] != '[' {
					return false
				}
				s = s[1:]
				pattern = pattern[1:]
				continue
			}
			class := pattern[1:end]
			if !matchClass(class, s[0]) {
				return false
			}
			s = s[1:]
			pattern = pattern[end+1:]
		case '\\':
			if len(pattern) < 2 {
				return len(s) == 1 && s[0] == '\\'
			}
			if len(s) == 0 || s[0] != pattern[1] {
				return false
			}
			s = s[1:]
			pattern = pattern[2:]
		default:
			if len(s) == 0 || s[0] != pattern[0] {
				return false
			}
			s = s[1:]
			pattern = pattern[1:]
		}
	}
	return len(s) == 0
}

func matchClass(class string, c byte) bool {
	negate := false
	if strings.HasPrefix(class, "^") {
		negate = true
		class = class[1:]
	}
	matched := false
	for i := 0; i < len(class); i++ {
		if i+2 < len(class) && class[i+1] == '-' {
			if class[i] <= c && c <= class[i+2] {
				matched = true
			}
			i += 2
		} else if class[i] == c {
			matched = true
		}
	}
	return matched != negate
}
