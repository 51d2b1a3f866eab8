package cursorstream

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.viam.com/test"
)

type fakeQuerier struct {
	mu       sync.Mutex
	state    CursorState
	rasters  map[HandleToken]*Raster
	queryErr error
	closed   bool
}

func newFakeQuerier() *fakeQuerier {
	return &fakeQuerier{rasters: map[HandleToken]*Raster{}}
}

func (q *fakeQuerier) set(state CursorState, r *Raster) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.state = state
	if r != nil {
		q.rasters[state.Handle] = r
	}
}

func (q *fakeQuerier) Query(ctx context.Context) (CursorState, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.queryErr != nil {
		return CursorState{}, q.queryErr
	}
	return q.state, nil
}

func (q *fakeQuerier) Capture(ctx context.Context, handle HandleToken) (*Raster, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	r, ok := q.rasters[handle]
	if !ok {
		return nil, errors.Errorf("no raster for handle %d", handle)
	}
	return r, nil
}

func (q *fakeQuerier) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}

func waitForMessage(t *testing.T, ch <-chan *Message) *Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestCaptureSourcePipeline(t *testing.T) {
	logger := golog.NewTestLogger(t)
	querier := newFakeQuerier()
	cache := NewCache()
	cfg := Config{
		TickInterval:         time.Millisecond,
		ForceRefreshInterval: 1 << 30,
		Logger:               logger,
	}
	cs := NewCaptureSource(querier, cache, &fakeEncoder{}, cfg)

	arrow := solidRaster(16, 16, 0, 0, 0, 255)
	querier.set(CursorState{Visible: true, Handle: 1}, arrow)

	test.That(t, cs.Start(), test.ShouldBeNil)
	test.That(t, cs.Start(), test.ShouldBeError, ErrAlreadyStarted)

	msg := waitForMessage(t, cs.Messages())
	test.That(t, msg.Type, test.ShouldEqual, MessageTypeData)
	arrowID := msg.Data.ContentID

	// Cursor switch to new pixels.
	beam := solidRaster(16, 16, 255, 255, 255, 255)
	querier.set(CursorState{Visible: true, Handle: 2}, beam)
	msg = waitForMessage(t, cs.Messages())
	test.That(t, msg.Type, test.ShouldEqual, MessageTypeData)
	test.That(t, msg.Data.ContentID, test.ShouldNotEqual, arrowID)

	// Back to cached pixels: a signal.
	querier.set(CursorState{Visible: true, Handle: 1}, arrow)
	msg = waitForMessage(t, cs.Messages())
	test.That(t, msg.Type, test.ShouldEqual, MessageTypeSignal)
	test.That(t, msg.Signal.ContentID, test.ShouldEqual, arrowID)

	// Hide.
	querier.set(CursorState{Visible: false}, nil)
	msg = waitForMessage(t, cs.Messages())
	test.That(t, msg.Type, test.ShouldEqual, MessageTypeHide)

	cs.Stop()
	_, ok := <-cs.Messages()
	test.That(t, ok, test.ShouldBeFalse)

	// Stop twice is fine.
	cs.Stop()
}

func TestCaptureSourceQueryFailuresSkipTicks(t *testing.T) {
	logger, observedLogs := golog.NewObservedTestLogger(t)
	querier := newFakeQuerier()
	querier.queryErr = errors.New("no cursor subsystem")
	cs := NewCaptureSource(querier, NewCache(), &fakeEncoder{}, Config{
		TickInterval: time.Millisecond,
		Logger:       logger,
	})
	test.That(t, cs.Start(), test.ShouldBeNil)

	select {
	case msg := <-cs.Messages():
		t.Fatalf("unexpected message %v", msg)
	case <-time.After(50 * time.Millisecond):
	}
	cs.Stop()

	// Each failed query is logged, not silently swallowed.
	test.That(t, observedLogs.FilterMessageSnippet("cursor query failed").Len(),
		test.ShouldBeGreaterThan, 0)
}

func TestCaptureSourcePublishLatestWins(t *testing.T) {
	cs := NewCaptureSource(newFakeQuerier(), NewCache(), &fakeEncoder{}, Config{
		Logger: golog.NewTestLogger(t),
	})
	stale := NewSignalMessage("cur_aaaaaaaaaaaa", 0)
	fresh := NewHideMessage()
	cs.publish(stale)
	cs.publish(fresh)

	msg := <-cs.Messages()
	test.That(t, msg, test.ShouldEqual, fresh)
	select {
	case extra := <-cs.Messages():
		t.Fatalf("unexpected extra message %v", extra)
	default:
	}
}
