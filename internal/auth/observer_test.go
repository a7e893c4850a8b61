package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fundori/fundori/internal/model"
)

// mockSource はGetSessionの完了タイミングを制御できるSessionSource。
type mockSource struct {
	notifier *Notifier
	release  chan struct{}
	session  *model.Session
	err      error
}

func newMockSource() *mockSource {
	return &mockSource{notifier: NewNotifier(), release: make(chan struct{})}
}

func (m *mockSource) GetSession(ctx context.Context, clientID string) (*model.Session, error) {
	select {
	case <-m.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return m.session, m.err
}

func (m *mockSource) Subscribe(clientID string) *Subscription {
	return m.notifier.Subscribe(clientID)
}

type countingRecorder struct {
	mu      sync.Mutex
	started int
	stopped int
}

func (r *countingRecorder) ObserverStarted() { r.mu.Lock(); r.started++; r.mu.Unlock() }
func (r *countingRecorder) ObserverStopped() { r.mu.Lock(); r.stopped++; r.mu.Unlock() }

func waitForSnapshot(t *testing.T, o *Observer, want State) Snapshot {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap, ok := <-o.Updates():
			if !ok {
				t.Fatalf("updates closed while waiting for %q", want)
			}
			if snap.State == want {
				return snap
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %q (current %q)", want, o.Snapshot().State)
		}
	}
}

func TestObserver_StartsInitializing(t *testing.T) {
	o := NewObserver(newMockSource(), "c1", nil)
	defer o.Close()

	snap := o.Snapshot()
	if !snap.Loading() || snap.User != nil {
		t.Errorf("initial snapshot = %+v, want loading with no user", snap)
	}
}

func TestObserver_DisabledGatewayLeavesInitializing(t *testing.T) {
	o := NewObserver(NewDisabledGateway(NewNotifier()), "c1", nil)
	o.Start(context.Background())
	defer o.Close()

	snap := waitForSnapshot(t, o, StateUnauthenticated)
	if snap.Loading() || snap.User != nil {
		t.Errorf("snapshot = %+v, want not loading and no user", snap)
	}
}

func TestObserver_InitialSessionAuthenticates(t *testing.T) {
	src := newMockSource()
	src.session = &model.Session{User: &model.User{ID: "user-1"}}
	close(src.release)

	o := NewObserver(src, "c1", nil)
	o.Start(context.Background())
	defer o.Close()

	snap := waitForSnapshot(t, o, StateAuthenticated)
	if snap.User.ID != "user-1" {
		t.Errorf("user = %+v, want user-1", snap.User)
	}
}

func TestObserver_InitialFetchErrorIsUnauthenticated(t *testing.T) {
	src := newMockSource()
	src.err = errors.New("boom")
	close(src.release)

	o := NewObserver(src, "c1", nil)
	o.Start(context.Background())
	defer o.Close()

	waitForSnapshot(t, o, StateUnauthenticated)
}

func TestObserver_NotificationBeforeInitialFetch(t *testing.T) {
	src := newMockSource()
	o := NewObserver(src, "c1", nil)
	o.Start(context.Background())
	defer o.Close()

	src.notifier.Publish("c1", model.AuthEvent{
		Kind:    model.AuthEventSignedIn,
		Session: &model.Session{User: &model.User{ID: "user-early"}},
	})

	snap := waitForSnapshot(t, o, StateAuthenticated)
	if snap.User.ID != "user-early" {
		t.Errorf("user = %+v, want user-early", snap.User)
	}

	// 遅れて初回取得が未認証で完了すると、到着順に上書きされる
	close(src.release)
	waitForSnapshot(t, o, StateUnauthenticated)
}

func TestObserver_SignOutNotification(t *testing.T) {
	src := newMockSource()
	src.session = &model.Session{User: &model.User{ID: "user-1"}}
	close(src.release)

	o := NewObserver(src, "c1", nil)
	o.Start(context.Background())
	defer o.Close()

	waitForSnapshot(t, o, StateAuthenticated)

	src.notifier.Publish("c1", model.AuthEvent{Kind: model.AuthEventSignedOut})
	waitForSnapshot(t, o, StateUnauthenticated)
}

func TestObserver_CloseIgnoresLateFetch(t *testing.T) {
	src := newMockSource()
	src.session = &model.Session{User: &model.User{ID: "user-1"}}
	rec := &countingRecorder{}

	o := NewObserver(src, "c1", nil)
	o.SetRecorder(rec)
	o.Start(context.Background())

	o.Close()
	o.Close()
	close(src.release)

	// 初回取得の完了を待つ
	time.Sleep(50 * time.Millisecond)

	if snap := o.Snapshot(); snap.State != StateInitializing {
		t.Errorf("state after close = %q, want unchanged %q", snap.State, StateInitializing)
	}
	if _, ok := <-o.Updates(); ok {
		t.Error("updates channel should be closed")
	}
	if src.notifier.SubscriberCount("c1") != 0 {
		t.Error("observer still subscribed after Close")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.started != 1 || rec.stopped != 1 {
		t.Errorf("recorder started=%d stopped=%d, want 1/1", rec.started, rec.stopped)
	}
}

func TestObserver_StartIsIdempotent(t *testing.T) {
	src := newMockSource()
	close(src.release)

	o := NewObserver(src, "c1", nil)
	o.Start(context.Background())
	o.Start(context.Background())
	defer o.Close()

	if got := src.notifier.SubscriberCount("c1"); got != 1 {
		t.Errorf("SubscriberCount = %d, want 1", got)
	}
}
