package spamguard

import (
	"testing"
	"time"

	"github.com/mygads/govconnect-channelgateway/pkg/kernel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		Enabled:         true,
		MaxIdentical:    5,
		BanDuration:     60 * time.Second,
		RateMaxMessages: 10,
		RateWindow:      10 * time.Second,
		GCInterval:      10 * time.Minute,
		InFlightMaxAge:  5 * time.Minute,
	}
}

func TestEvaluate_FirstMessageStartsNewBubble(t *testing.T) {
	g := New(testConfig())
	key := kernel.UserKey{VillageID: "v1", UserID: "u1"}
	now := time.Now()

	d := g.Evaluate(key, "m1", "hello", now)

	require.True(t, d.ShouldProcess)
	assert.False(t, d.SupersedePrevious)
	assert.Len(t, d.Context, 1)
}

func TestEvaluate_SecondMessageSupersedesFirst(t *testing.T) {
	g := New(testConfig())
	key := kernel.UserKey{VillageID: "v1", UserID: "u1"}
	now := time.Now()

	g.Evaluate(key, "m1", "hello", now)
	d := g.Evaluate(key, "m2", "how are you", now.Add(time.Second))

	require.True(t, d.ShouldProcess)
	assert.True(t, d.SupersedePrevious)
	assert.Equal(t, []string{"m1"}, d.SuppressedMessageIDs)
	assert.Len(t, d.Context, 2)
}

func TestEvaluate_IdenticalCountExceedsThreshold(t *testing.T) {
	cfg := testConfig()
	cfg.MaxIdentical = 2
	g := New(cfg)
	key := kernel.UserKey{VillageID: "v1", UserID: "u1"}
	now := time.Now()

	g.Evaluate(key, "m1", "spam", now)
	g.Evaluate(key, "m2", "spam", now)
	d := g.Evaluate(key, "m3", "spam", now)

	require.True(t, d.Rejected)
	assert.Equal(t, "IDENTICAL_MESSAGE_LIMIT", d.RejectReason)
}

func TestEvaluate_TextBanRejectsSameTextAfterTrigger(t *testing.T) {
	cfg := testConfig()
	cfg.MaxIdentical = 1
	g := New(cfg)
	key := kernel.UserKey{VillageID: "v1", UserID: "u1"}
	now := time.Now()

	g.Evaluate(key, "m1", "spam", now)
	g.Evaluate(key, "m2", "spam", now)

	d := g.Evaluate(key, "m3", "spam", now.Add(time.Second))
	require.True(t, d.Rejected)
	assert.Equal(t, "TEXT_BANNED", d.RejectReason)
}

func TestEvaluate_RateBanTriggersAfterWindowExceeded(t *testing.T) {
	cfg := testConfig()
	cfg.RateMaxMessages = 2
	g := New(cfg)
	key := kernel.UserKey{VillageID: "v1", UserID: "u1"}
	now := time.Now()

	g.Evaluate(key, "m1", "a", now)
	g.Evaluate(key, "m2", "b", now)
	d := g.Evaluate(key, "m3", "c", now)

	require.True(t, d.Rejected)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", d.RejectReason)

	d2 := g.Evaluate(key, "m4", "d", now.Add(time.Millisecond))
	require.True(t, d2.Rejected)
	assert.Equal(t, "RATE_BANNED", d2.RejectReason)
}

func TestClearBubble_ResetsInFlightAndIdenticalCounts(t *testing.T) {
	g := New(testConfig())
	key := kernel.UserKey{VillageID: "v1", UserID: "u1"}
	now := time.Now()

	g.Evaluate(key, "m1", "hello", now)
	g.ClearBubble(key)

	d := g.Evaluate(key, "m2", "hello", now.Add(time.Second))
	assert.False(t, d.SupersedePrevious)
	assert.Len(t, d.Context, 1)
}

func TestGC_EvictsStaleInFlightAndExpiredBans(t *testing.T) {
	cfg := testConfig()
	cfg.InFlightMaxAge = time.Minute
	g := New(cfg)
	key := kernel.UserKey{VillageID: "v1", UserID: "u1"}
	now := time.Now()

	g.Evaluate(key, "m1", "hello", now)
	g.GC(now.Add(10 * time.Minute))

	g.mu.Lock()
	_, exists := g.users[key]
	g.mu.Unlock()
	assert.False(t, exists)
}
