package flows

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"fridgechef/internal/chefapi"
	"fridgechef/internal/shared/storage/object"
	localstore "fridgechef/internal/shared/storage/object/local"
	"fridgechef/internal/uploads"
)

var testPNG = append([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}, bytes.Repeat([]byte{3}, 128)...)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func newTestService(t *testing.T, chef chefapi.Client) (*Service, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2026, 5, 4, 18, 0, 0, 0, time.UTC)}
	svc := &Service{
		Repo:    NewMemoryRepo(),
		Uploads: &uploads.Service{Store: localstore.New(t.TempDir())},
		Chef:    chef,
		Hub:     NewHub(),
		TTL:     30 * time.Minute,
		Now:     clock.Now,
	}
	t.Cleanup(svc.Wait)
	return svc, clock
}

// flowWithPhoto creates a flow and uploads a PNG to it.
func flowWithPhoto(t *testing.T, svc *Service) Flow {
	t.Helper()
	ctx := context.Background()
	flow, err := svc.Create(ctx)
	require.NoError(t, err)
	flow, accepted, err := svc.SelectImage(ctx, flow.ID, "fridge.png", "image/png", bytes.NewReader(testPNG))
	require.NoError(t, err)
	require.True(t, accepted)
	return flow
}

// confirmedFlow runs detection to completion and returns the confirm-stage flow.
func confirmedFlow(t *testing.T, svc *Service) Flow {
	t.Helper()
	flow := flowWithPhoto(t, svc)
	_, issued, err := svc.StartDetect(context.Background(), flow.ID)
	require.NoError(t, err)
	require.True(t, issued)
	svc.Wait()
	flow, err = svc.Get(context.Background(), flow.ID)
	require.NoError(t, err)
	return flow
}

// gate blocks a fake backend call until released.
type gate struct {
	started chan struct{}
	release chan struct{}
}

func newGate() *gate {
	return &gate{started: make(chan struct{}, 1), release: make(chan struct{})}
}

func (g *gate) wait() {
	g.started <- struct{}{}
	<-g.release
}

func (g *gate) awaitStart(t *testing.T) {
	t.Helper()
	select {
	case <-g.started:
	case <-time.After(5 * time.Second):
		t.Fatalf("backend call never started")
	}
}

// hookRepo runs a one-shot hook around the next Get or Delete.
type hookRepo struct {
	Repo

	mu           sync.Mutex
	afterGet     func()
	beforeDelete func()
}

func (r *hookRepo) take(hook *func()) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := *hook
	*hook = nil
	return h
}

func (r *hookRepo) Get(ctx context.Context, id string) (Flow, error) {
	flow, err := r.Repo.Get(ctx, id)
	if h := r.take(&r.afterGet); h != nil {
		h()
	}
	return flow, err
}

func (r *hookRepo) Delete(ctx context.Context, id string) error {
	if h := r.take(&r.beforeDelete); h != nil {
		h()
	}
	return r.Repo.Delete(ctx, id)
}

// countingStore counts photo deletions.
type countingStore struct {
	object.ObjectStore

	mu      sync.Mutex
	deletes int
}

func (s *countingStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	s.deletes++
	s.mu.Unlock()
	return s.ObjectStore.Delete(ctx, key)
}

func (s *countingStore) Deletes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deletes
}
