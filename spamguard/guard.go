// Package spamguard is the purely in-memory per-user/tenant spam
// discipline (C5): rate bans, text bans, and bubble accumulation,
// evaluated in spec.md §4.5's exact five-step order.
package spamguard

import (
	"sync"
	"time"

	"github.com/mygads/govconnect-channelgateway/pkg/kernel"
)

// InFlightMessage is one message accumulated into the current bubble.
type InFlightMessage struct {
	MessageID  string
	Text       string
	ReceivedAt time.Time
}

// Decision is the outcome of evaluating one inbound message.
type Decision struct {
	ShouldProcess        bool
	Rejected             bool
	RejectReason         string
	RemainingBanMS       int64
	SupersedePrevious    bool
	SuppressedMessageIDs []string
	Context              []InFlightMessage
}

type userState struct {
	inFlight        []InFlightMessage
	identicalCounts map[string]int
	textBans        map[string]time.Time
	rateBan         time.Time
	rateWindow      []time.Time
}

func newUserState() *userState {
	return &userState{
		identicalCounts: make(map[string]int),
		textBans:        make(map[string]time.Time),
	}
}

// Config mirrors config.SpamConfig; kept separate so this package has no
// dependency on pkg/config.
type Config struct {
	Enabled         bool
	MaxIdentical    int
	BanDuration     time.Duration
	RateMaxMessages int
	RateWindow      time.Duration
	GCInterval      time.Duration
	InFlightMaxAge  time.Duration
}

// Guard partitions all state by kernel.UserKey behind one map guarded by
// a single mutex — the corpus's channelmanager.Manager style, adapted
// from a connection registry to a spam-state registry.
type Guard struct {
	cfg   Config
	mu    sync.Mutex
	users map[kernel.UserKey]*userState
}

func New(cfg Config) *Guard {
	return &Guard{cfg: cfg, users: make(map[kernel.UserKey]*userState)}
}

// Evaluate runs the five-step decision procedure for one inbound message.
// now is threaded in so GC and tests don't depend on the wall clock.
func (g *Guard) Evaluate(key kernel.UserKey, messageID, normalizedText string, now time.Time) Decision {
	if !g.cfg.Enabled {
		return g.appendBubble(g.stateFor(key), messageID, normalizedText, now)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	u := g.stateForLocked(key)

	// 1. Rate ban active.
	if !u.rateBan.IsZero() && now.Before(u.rateBan) {
		return Decision{Rejected: true, RejectReason: "RATE_BANNED", RemainingBanMS: u.rateBan.Sub(now).Milliseconds()}
	}

	// 2. Text ban active for this exact normalized text.
	if until, ok := u.textBans[normalizedText]; ok && now.Before(until) {
		return Decision{Rejected: true, RejectReason: "TEXT_BANNED", RemainingBanMS: until.Sub(now).Milliseconds()}
	}

	// 3. Rate window.
	u.rateWindow = append(u.rateWindow, now)
	cutoff := now.Add(-g.cfg.RateWindow)
	kept := u.rateWindow[:0]
	for _, t := range u.rateWindow {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	u.rateWindow = kept
	if len(u.rateWindow) > g.cfg.RateMaxMessages {
		u.rateBan = now.Add(g.cfg.BanDuration)
		return Decision{Rejected: true, RejectReason: "RATE_LIMIT_EXCEEDED", RemainingBanMS: g.cfg.BanDuration.Milliseconds()}
	}

	// 4. Identical count within the current bubble.
	u.identicalCounts[normalizedText]++
	if u.identicalCounts[normalizedText] > g.cfg.MaxIdentical {
		u.textBans[normalizedText] = now.Add(g.cfg.BanDuration)
		return Decision{Rejected: true, RejectReason: "IDENTICAL_MESSAGE_LIMIT", RemainingBanMS: g.cfg.BanDuration.Milliseconds()}
	}

	// 5. Bubble logic.
	return g.appendBubbleLocked(u, messageID, normalizedText, now)
}

func (g *Guard) appendBubble(u *userState, messageID, text string, now time.Time) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.appendBubbleLocked(u, messageID, text, now)
}

func (g *Guard) appendBubbleLocked(u *userState, messageID, text string, now time.Time) Decision {
	previous := u.inFlight
	this := InFlightMessage{MessageID: messageID, Text: text, ReceivedAt: now}

	if len(previous) == 0 {
		u.inFlight = []InFlightMessage{this}
		return Decision{ShouldProcess: true, Context: []InFlightMessage{this}}
	}

	suppressed := make([]string, len(previous))
	for i, p := range previous {
		suppressed[i] = p.MessageID
	}
	combined := append(append([]InFlightMessage{}, previous...), this)
	u.inFlight = combined

	return Decision{
		ShouldProcess:        true,
		SupersedePrevious:    true,
		SuppressedMessageIDs: suppressed,
		Context:              combined,
	}
}

// ClearBubble drops the in-flight accumulation for key — called when an
// AI reply for that user arrives successfully.
func (g *Guard) ClearBubble(key kernel.UserKey) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if u, ok := g.users[key]; ok {
		u.inFlight = nil
		u.identicalCounts = make(map[string]int)
	}
}

func (g *Guard) stateFor(key kernel.UserKey) *userState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stateForLocked(key)
}

func (g *Guard) stateForLocked(key kernel.UserKey) *userState {
	u, ok := g.users[key]
	if !ok {
		u = newUserState()
		g.users[key] = u
	}
	return u
}

// GC evicts stale in-flight entries, expired bans, and empty rate
// windows across every tracked user. Intended to run every
// cfg.GCInterval (spec.md §4.5).
func (g *Guard) GC(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	maxAge := g.cfg.InFlightMaxAge
	for key, u := range g.users {
		kept := u.inFlight[:0]
		for _, m := range u.inFlight {
			if now.Sub(m.ReceivedAt) <= maxAge {
				kept = append(kept, m)
			}
		}
		u.inFlight = kept

		windowCutoff := now.Add(-g.cfg.RateWindow)
		keptTimes := u.rateWindow[:0]
		for _, t := range u.rateWindow {
			if t.After(windowCutoff) {
				keptTimes = append(keptTimes, t)
			}
		}
		u.rateWindow = keptTimes

		for text, until := range u.textBans {
			if now.After(until) {
				delete(u.textBans, text)
			}
		}
		if !u.rateBan.IsZero() && now.After(u.rateBan) {
			u.rateBan = time.Time{}
		}
		if len(u.rateWindow) == 0 && len(u.inFlight) == 0 && len(u.textBans) == 0 && u.rateBan.IsZero() {
			delete(g.users, key)
		}
	}
}
