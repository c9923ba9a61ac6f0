package webhook

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memDeliveryStore struct {
	mu     sync.Mutex
	states map[string]DeliveryState

	// onRead, when set, runs under the lock before every DeliveryState read.
	onRead func(states map[string]DeliveryState)
}

func newMemDeliveryStore() *memDeliveryStore {
	return &memDeliveryStore{states: make(map[string]DeliveryState)}
}

func (s *memDeliveryStore) DeliveryState(_ context.Context, resourceID string) (DeliveryState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.onRead != nil {
		s.onRead(s.states)
	}
	state, ok := s.states[resourceID]
	if !ok {
		return DeliveryState{Status: StatusNotRequested}, nil
	}
	return state, nil
}

func (s *memDeliveryStore) SetDeliveryState(_ context.Context, resourceID string, state DeliveryState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[resourceID] = state
	return nil
}

func (s *memDeliveryStore) get(resourceID string) DeliveryState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[resourceID]
}

func fastRetries(t *testing.T) {
	t.Helper()
	orig := baseRetryDelay
	baseRetryDelay = time.Millisecond
	t.Cleanup(func() { baseRetryDelay = orig })
}

// runDeliver drives the delivery loop directly. Schedule refuses non-HTTPS
// destinations, which httptest servers are, so loop behavior is tested below
// the guard.
func runDeliver(e *Engine, resourceID, rawURL, secret string, notice Notice) {
	e.wg.Add(1)
	e.deliver(resourceID, rawURL, secret, notice)
}

type hookRecorder struct {
	mu      sync.Mutex
	hits    int
	status  int
	lastReq struct {
		body       []byte
		signature  string
		event      string
		deliveryID string
	}
}

func (h *hookRecorder) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		h.mu.Lock()
		h.hits++
		h.lastReq.body = body
		h.lastReq.signature = r.Header.Get(HeaderSignature)
		h.lastReq.event = r.Header.Get(HeaderEvent)
		h.lastReq.deliveryID = r.Header.Get(HeaderDeliveryID)
		status := h.status
		h.mu.Unlock()
		if status != 0 {
			w.WriteHeader(status)
		}
	}
}

func (h *hookRecorder) hitCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hits
}

func testNotice() Notice {
	return Notice{
		Event:   EventCertificationCompleted,
		ProofID: "p-1",
		Status:  "certified",
	}
}

func TestDeliverySucceedsFirstAttempt(t *testing.T) {
	fastRetries(t)
	rec := &hookRecorder{}
	server := httptest.NewServer(rec.handler())
	defer server.Close()

	store := newMemDeliveryStore()
	store.states["p-1"] = DeliveryState{Status: StatusPending}
	engine := NewEngine(EngineParams{Store: store})

	runDeliver(engine, "p-1", server.URL, "whsec_test", testNotice())
	engine.Wait()

	require.Equal(t, 1, rec.hitCount())
	state := store.get("p-1")
	require.Equal(t, StatusDelivered, state.Status)
	require.Equal(t, 1, state.Attempts)
	require.False(t, state.LastAttemptAt.IsZero())

	// The signature verifies against the body exactly as received.
	require.True(t, VerifySignature("whsec_test", rec.lastReq.body, rec.lastReq.signature))
	require.Equal(t, EventCertificationCompleted, rec.lastReq.event)
	require.NotEmpty(t, rec.lastReq.deliveryID)
}

func TestDeliveryRetriesThenExhausts(t *testing.T) {
	fastRetries(t)
	rec := &hookRecorder{status: http.StatusInternalServerError}
	server := httptest.NewServer(rec.handler())
	defer server.Close()

	store := newMemDeliveryStore()
	store.states["p-1"] = DeliveryState{Status: StatusPending}
	engine := NewEngine(EngineParams{Store: store, MaxAttempts: 3})

	runDeliver(engine, "p-1", server.URL, "whsec_test", testNotice())
	engine.Wait()

	require.Equal(t, 3, rec.hitCount())
	state := store.get("p-1")
	require.Equal(t, StatusFailed, state.Status)
	require.Equal(t, 3, state.Attempts)
}

func TestDeliveryKeepsDeliveryIDAcrossRetries(t *testing.T) {
	fastRetries(t)
	var mu sync.Mutex
	var ids []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		ids = append(ids, r.Header.Get(HeaderDeliveryID))
		n := len(ids)
		mu.Unlock()
		if n < 2 {
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer server.Close()

	store := newMemDeliveryStore()
	store.states["p-1"] = DeliveryState{Status: StatusPending}
	engine := NewEngine(EngineParams{Store: store})

	runDeliver(engine, "p-1", server.URL, "whsec_test", testNotice())
	engine.Wait()

	require.Len(t, ids, 2)
	require.Equal(t, ids[0], ids[1])
	require.Equal(t, StatusDelivered, store.get("p-1").Status)
}

func TestDeliveryLoopsAreSequentialPerResource(t *testing.T) {
	fastRetries(t)
	rec := &hookRecorder{status: http.StatusInternalServerError}
	server := httptest.NewServer(rec.handler())
	defer server.Close()

	store := newMemDeliveryStore()
	store.states["p-1"] = DeliveryState{Status: StatusPending}
	engine := NewEngine(EngineParams{Store: store, MaxAttempts: 3})

	// Scheduling the same resource twice must not double the attempt budget.
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runDeliver(engine, "p-1", server.URL, "whsec_test", testNotice())
		}()
	}
	wg.Wait()
	engine.Wait()

	require.Equal(t, 3, rec.hitCount())
	state := store.get("p-1")
	require.Equal(t, StatusFailed, state.Status)
	require.Equal(t, 3, state.Attempts)
}

func TestDeliveryRefusesRedirects(t *testing.T) {
	fastRetries(t)
	rec := &hookRecorder{}
	target := httptest.NewServer(rec.handler())
	defer target.Close()

	redirecting := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target.URL, http.StatusFound)
	}))
	defer redirecting.Close()

	store := newMemDeliveryStore()
	store.states["p-1"] = DeliveryState{Status: StatusPending}
	engine := NewEngine(EngineParams{Store: store, MaxAttempts: 1})

	runDeliver(engine, "p-1", redirecting.URL, "whsec_test", testNotice())
	engine.Wait()

	// The redirect target fails URL screening, so it is never contacted.
	require.Zero(t, rec.hitCount())
	require.Equal(t, StatusFailed, store.get("p-1").Status)
}

func TestDeliveryStopsWhenMarkedTerminalElsewhere(t *testing.T) {
	fastRetries(t)
	rec := &hookRecorder{status: http.StatusInternalServerError}
	server := httptest.NewServer(rec.handler())
	defer server.Close()

	store := newMemDeliveryStore()
	store.states["p-1"] = DeliveryState{Status: StatusPending}
	// Another path marks the resource delivered after the first failed attempt.
	store.onRead = func(states map[string]DeliveryState) {
		if state := states["p-1"]; state.Attempts >= 1 {
			state.Status = StatusDelivered
			states["p-1"] = state
		}
	}
	engine := NewEngine(EngineParams{Store: store})

	runDeliver(engine, "p-1", server.URL, "whsec_test", testNotice())
	engine.Wait()

	require.Equal(t, 1, rec.hitCount())
	require.Equal(t, StatusDelivered, store.get("p-1").Status)
}

func TestDeliverySkipsWhenAttemptsAlreadyExhausted(t *testing.T) {
	fastRetries(t)
	rec := &hookRecorder{}
	server := httptest.NewServer(rec.handler())
	defer server.Close()

	store := newMemDeliveryStore()
	store.states["p-1"] = DeliveryState{Status: StatusPending, Attempts: 3}
	engine := NewEngine(EngineParams{Store: store, MaxAttempts: 3})

	runDeliver(engine, "p-1", server.URL, "whsec_test", testNotice())
	engine.Wait()

	require.Zero(t, rec.hitCount())
	require.Equal(t, StatusFailed, store.get("p-1").Status)
}

func TestScheduleRejectsUnsafeURL(t *testing.T) {
	store := newMemDeliveryStore()
	engine := NewEngine(EngineParams{Store: store})

	err := engine.Schedule(context.Background(), "p-1", "http://attacker.example/hook", "", testNotice())
	require.Error(t, err)
	require.Equal(t, StatusFailed, store.get("p-1").Status)
	engine.Wait()
}

func TestScheduleLeavesTerminalRecordsAlone(t *testing.T) {
	store := newMemDeliveryStore()
	store.states["p-1"] = DeliveryState{Status: StatusDelivered, Attempts: 1}
	engine := NewEngine(EngineParams{Store: store})

	require.NoError(t, engine.Schedule(context.Background(), "p-1", "http://not-even-valid", "", testNotice()))
	engine.Wait()

	state := store.get("p-1")
	require.Equal(t, StatusDelivered, state.Status)
	require.Equal(t, 1, state.Attempts)
}

func TestScheduleFailsOnStoreReadError(t *testing.T) {
	engine := NewEngine(EngineParams{Store: failingStore{}})
	err := engine.Schedule(context.Background(), "p-1", "https://hooks.example.com/x", "", testNotice())
	require.Error(t, err)
}

type failingStore struct{}

func (failingStore) DeliveryState(context.Context, string) (DeliveryState, error) {
	return DeliveryState{}, fmt.Errorf("store offline")
}

func (failingStore) SetDeliveryState(context.Context, string, DeliveryState) error {
	return fmt.Errorf("store offline")
}

func TestResolveSecretFallsBack(t *testing.T) {
	engine := NewEngine(EngineParams{Store: newMemDeliveryStore(), FallbackSecret: "whsec_fallback"})
	require.Equal(t, "whsec_custom", engine.resolveSecret("whsec_custom"))
	require.Equal(t, "whsec_fallback", engine.resolveSecret(""))
}

func TestBackoffScheduleDoubles(t *testing.T) {
	bo := newRetryBackOff()
	require.Equal(t, 2*baseRetryDelay, bo.NextBackOff())
	require.Equal(t, 4*baseRetryDelay, bo.NextBackOff())
}
