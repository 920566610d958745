package policy

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DriftThreads/DriftThreads/internal/store"
)

// memStore is an in-memory policy.Store with a per-user mutex standing in
// for the Postgres advisory lock. It counts ban upserts so concurrency
// tests can assert exactly-once issuance.
type memStore struct {
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	dataMu      sync.Mutex
	bans        map[string]*store.BanRecord
	msgs        map[string][]time.Time
	upsertCalls int64

	failWith error
}

func newMemStore() *memStore {
	return &memStore{
		locks: make(map[string]*sync.Mutex),
		bans:  make(map[string]*store.BanRecord),
		msgs:  make(map[string][]time.Time),
	}
}

func (m *memStore) userLock(userID string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	l, ok := m.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[userID] = l
	}
	return l
}

func (m *memStore) WithUserLock(_ context.Context, userID string, fn func(tx Store) error) error {
	l := m.userLock(userID)
	l.Lock()
	defer l.Unlock()
	return fn(m)
}

func (m *memStore) GetBan(_ context.Context, userID string) (*store.BanRecord, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	m.dataMu.Lock()
	defer m.dataMu.Unlock()
	if b, ok := m.bans[userID]; ok {
		copied := *b
		return &copied, nil
	}
	return nil, nil
}

func (m *memStore) UpsertBan(_ context.Context, ban *store.BanRecord) error {
	m.dataMu.Lock()
	defer m.dataMu.Unlock()
	atomic.AddInt64(&m.upsertCalls, 1)
	if existing, ok := m.bans[ban.UserID]; ok && existing.Until.After(ban.Until) {
		return nil // bans extend, never shorten
	}
	copied := *ban
	m.bans[ban.UserID] = &copied
	return nil
}

func (m *memStore) LastMessageAt(_ context.Context, userID string) (time.Time, bool, error) {
	m.dataMu.Lock()
	defer m.dataMu.Unlock()
	ts := m.msgs[userID]
	if len(ts) == 0 {
		return time.Time{}, false, nil
	}
	last := ts[0]
	for _, t := range ts[1:] {
		if t.After(last) {
			last = t
		}
	}
	return last, true, nil
}

func (m *memStore) CountMessagesSince(_ context.Context, userID string, since time.Time) (int, error) {
	m.dataMu.Lock()
	defer m.dataMu.Unlock()
	count := 0
	for _, t := range m.msgs[userID] {
		if t.After(since) {
			count++
		}
	}
	return count, nil
}

func (m *memStore) addMessage(userID string, at time.Time) {
	m.dataMu.Lock()
	defer m.dataMu.Unlock()
	m.msgs[userID] = append(m.msgs[userID], at)
}

var t0 = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func TestAdmit_NoPriorActivity(t *testing.T) {
	p := New(DefaultConfig(), newMemStore())

	d, err := p.Admit(context.Background(), "u1", t0)
	if err != nil {
		t.Fatalf("Admit() error: %v", err)
	}
	if !d.Allowed {
		t.Errorf("Admit() = %+v, want allowed", d)
	}
}

func TestAdmit_Cooldown(t *testing.T) {
	tests := []struct {
		name    string
		delta   time.Duration
		allowed bool
	}{
		{"2s after last message", 2 * time.Second, false},
		{"2.999s after last message", 2999 * time.Millisecond, false},
		{"exactly 3s", 3 * time.Second, true},
		{"3.5s after last message", 3500 * time.Millisecond, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newMemStore()
			st.addMessage("u1", t0)
			p := New(DefaultConfig(), st)

			d, err := p.Admit(context.Background(), "u1", t0.Add(tt.delta))
			if err != nil {
				t.Fatalf("Admit() error: %v", err)
			}
			if d.Allowed != tt.allowed {
				t.Errorf("Admit() allowed = %v, want %v", d.Allowed, tt.allowed)
			}
			if !tt.allowed && d.Reason != ReasonRateLimited {
				t.Errorf("Reason = %q, want %q", d.Reason, ReasonRateLimited)
			}
		})
	}
}

func TestAdmit_BurstTriggersBan(t *testing.T) {
	st := newMemStore()
	// 8 messages in the trailing 30s window, most recent 5s old so the
	// cooldown does not fire first.
	for i := 0; i < 8; i++ {
		st.addMessage("u1", t0.Add(-time.Duration(5+i*3)*time.Second))
	}

	var issued *store.BanRecord
	p := New(DefaultConfig(), st)
	p.OnBanIssued(func(b *store.BanRecord) { issued = b })

	now := t0.Add(1 * time.Second)
	d, err := p.Admit(context.Background(), "u1", now)
	if err != nil {
		t.Fatalf("Admit() error: %v", err)
	}
	if d.Allowed || d.Reason != ReasonBanned {
		t.Fatalf("Admit() = %+v, want banned rejection", d)
	}

	wantUntil := now.Add(10 * time.Minute)
	if !d.BanUntil.Equal(wantUntil) {
		t.Errorf("BanUntil = %v, want %v", d.BanUntil, wantUntil)
	}
	if d.BanReason != BanReasonSpam {
		t.Errorf("BanReason = %q, want %q", d.BanReason, BanReasonSpam)
	}

	if issued == nil {
		t.Fatal("OnBanIssued callback not invoked")
	}
	if !issued.Until.Equal(wantUntil) || issued.UserID != "u1" {
		t.Errorf("issued ban = %+v", issued)
	}

	// The ban is durable: the next attempt rejects at step 1 without a
	// second upsert.
	d, err = p.Admit(context.Background(), "u1", now.Add(time.Second))
	if err != nil {
		t.Fatalf("Admit() error: %v", err)
	}
	if d.Reason != ReasonBanned {
		t.Errorf("second Admit() = %+v, want banned", d)
	}
	if n := atomic.LoadInt64(&st.upsertCalls); n != 1 {
		t.Errorf("upsert calls = %d, want 1", n)
	}
}

func TestAdmit_BelowBurstLimitAllows(t *testing.T) {
	st := newMemStore()
	for i := 0; i < 7; i++ {
		st.addMessage("u1", t0.Add(-time.Duration(5+i*3)*time.Second))
	}
	p := New(DefaultConfig(), st)

	d, err := p.Admit(context.Background(), "u1", t0.Add(1*time.Second))
	if err != nil {
		t.Fatalf("Admit() error: %v", err)
	}
	if !d.Allowed {
		t.Errorf("Admit() = %+v, want allowed", d)
	}
}

func TestAdmit_BanExpiryAllows(t *testing.T) {
	st := newMemStore()
	until := t0.Add(10 * time.Minute)
	st.bans["u1"] = &store.BanRecord{UserID: "u1", Until: until, Reason: "spam", IssuedAt: t0}
	st.addMessage("u1", t0.Add(-time.Minute))
	p := New(DefaultConfig(), st)

	// Still banned just before expiry.
	d, err := p.Admit(context.Background(), "u1", until.Add(-time.Second))
	if err != nil {
		t.Fatalf("Admit() error: %v", err)
	}
	if d.Reason != ReasonBanned {
		t.Errorf("before expiry: %+v, want banned", d)
	}

	// Allowed after.
	d, err = p.Admit(context.Background(), "u1", until.Add(time.Second))
	if err != nil {
		t.Fatalf("Admit() error: %v", err)
	}
	if !d.Allowed {
		t.Errorf("after expiry: %+v, want allowed", d)
	}
}

func TestAdmit_ConcurrentBurstIssuesOneBan(t *testing.T) {
	st := newMemStore()
	for i := 0; i < 8; i++ {
		st.addMessage("u1", t0.Add(-time.Duration(5+i*3)*time.Second))
	}

	var banCallbacks int64
	p := New(DefaultConfig(), st)
	p.OnBanIssued(func(*store.BanRecord) { atomic.AddInt64(&banCallbacks, 1) })

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := p.Admit(context.Background(), "u1", t0.Add(time.Second))
			if err != nil {
				errs <- err
				return
			}
			if d.Allowed {
				errs <- errors.New("burst-triggering submission was allowed")
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	if n := atomic.LoadInt64(&st.upsertCalls); n != 1 {
		t.Errorf("ban upserts = %d, want exactly 1", n)
	}
	if n := atomic.LoadInt64(&banCallbacks); n != 1 {
		t.Errorf("ban callbacks = %d, want exactly 1", n)
	}
}

// fakeCache records lookups so tests can observe the fast path.
type fakeCache struct {
	ban  *store.BanRecord
	gets int
	puts int
}

func (c *fakeCache) Get(_ context.Context, _ string) (*store.BanRecord, bool) {
	c.gets++
	if c.ban == nil {
		return nil, false
	}
	return c.ban, true
}

func (c *fakeCache) Put(_ context.Context, ban *store.BanRecord, _ time.Time) {
	c.puts++
	c.ban = ban
}

func TestAdmit_CacheFastPathSkipsStore(t *testing.T) {
	st := newMemStore()
	st.failWith = errors.New("store must not be touched")

	cache := &fakeCache{ban: &store.BanRecord{
		UserID: "u1", Until: t0.Add(5 * time.Minute), Reason: "spam", IssuedAt: t0,
	}}

	p := New(DefaultConfig(), st)
	p.UseCache(cache)

	d, err := p.Admit(context.Background(), "u1", t0)
	if err != nil {
		t.Fatalf("Admit() error: %v", err)
	}
	if d.Reason != ReasonBanned {
		t.Errorf("Admit() = %+v, want banned from cache", d)
	}
	if cache.gets != 1 {
		t.Errorf("cache gets = %d, want 1", cache.gets)
	}
}

func TestAdmit_StaleCacheFallsThrough(t *testing.T) {
	st := newMemStore()
	cache := &fakeCache{ban: &store.BanRecord{
		UserID: "u1", Until: t0.Add(-time.Minute), Reason: "spam", IssuedAt: t0.Add(-11 * time.Minute),
	}}

	p := New(DefaultConfig(), st)
	p.UseCache(cache)

	d, err := p.Admit(context.Background(), "u1", t0)
	if err != nil {
		t.Fatalf("Admit() error: %v", err)
	}
	if !d.Allowed {
		t.Errorf("Admit() = %+v, want allowed (cached ban expired)", d)
	}
}

func TestAdmit_BanWritesThroughCache(t *testing.T) {
	st := newMemStore()
	for i := 0; i < 8; i++ {
		st.addMessage("u1", t0.Add(-time.Duration(5+i*3)*time.Second))
	}
	cache := &fakeCache{}

	p := New(DefaultConfig(), st)
	p.UseCache(cache)

	if _, err := p.Admit(context.Background(), "u1", t0.Add(time.Second)); err != nil {
		t.Fatalf("Admit() error: %v", err)
	}
	if cache.puts != 1 {
		t.Errorf("cache puts = %d, want 1", cache.puts)
	}
}

func TestAdmit_StoreFailurePropagates(t *testing.T) {
	st := newMemStore()
	st.failWith = store.ErrUnavailable
	p := New(DefaultConfig(), st)

	_, err := p.Admit(context.Background(), "u1", t0)
	if !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("Admit() error = %v, want wrapped ErrUnavailable", err)
	}
}
