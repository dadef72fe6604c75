package poll

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/cloudzz-dev/cldzlive/internal/client/ledger"
	"github.com/cloudzz-dev/cldzlive/internal/client/message"
)

// fakeRoom serves scripted get_room_chat responses, one per request; the
// last one repeats.
type fakeRoom struct {
	mu        sync.Mutex
	responses []func(w http.ResponseWriter)
	floors    []int
}

func (fr *fakeRoom) handler() http.Handler {
	r := chi.NewRouter()
	r.Get(roomChatPath, func(w http.ResponseWriter, r *http.Request) {
		last, _ := strconv.Atoi(r.URL.Query().Get("last_floor"))
		fr.mu.Lock()
		fr.floors = append(fr.floors, last)
		respond := fr.responses[0]
		if len(fr.responses) > 1 {
			fr.responses = fr.responses[1:]
		}
		fr.mu.Unlock()
		respond(w)
	})
	return r
}

func (fr *fakeRoom) requestedFloors() []int {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	return append([]int(nil), fr.floors...)
}

func items(floors ...int) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		var parts []string
		for _, f := range floors {
			parts = append(parts, fmt.Sprintf(`{"floor":%d,"data_type":"ai","data":{"name":"AI","mes":"m%d"}}`, f, f))
		}
		fmt.Fprintf(w, `{"code":0,"data":[%s]}`, strings.Join(parts, ","))
	}
}

func raw(status int, body string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.WriteHeader(status)
		w.Write([]byte(body))
	}
}

type recorder struct {
	mu      sync.Mutex
	batches [][]int
	ch      chan []int
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan []int, 16)}
}

func (r *recorder) DeliverBatch(roomID string, batch []message.Message) {
	var floors []int
	for _, m := range batch {
		floors = append(floors, m.Floor)
	}
	r.mu.Lock()
	r.batches = append(r.batches, floors)
	r.mu.Unlock()
	r.ch <- floors
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

func (r *recorder) next(t *testing.T) []int {
	t.Helper()
	select {
	case b := <-r.ch:
		return b
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for a batch")
		return nil
	}
}

func newFetcher(t *testing.T, fr *fakeRoom, sink Sink, clk clock.Clock) (*Fetcher, *ledger.Ledger) {
	t.Helper()
	srv := httptest.NewServer(fr.handler())
	t.Cleanup(srv.Close)
	l := ledger.New()
	return New(srv.URL, l, sink, Options{Clock: clk, Logger: zerolog.Nop()}), l
}

func TestFetchSkipsSeenFloors(t *testing.T) {
	fr := &fakeRoom{responses: []func(http.ResponseWriter){items(1), items(1, 2)}}
	rec := newRecorder()
	f, l := newFetcher(t, fr, rec, clock.NewMock())
	ctx := context.Background()

	if n, err := f.Fetch(ctx, "r1"); err != nil || n != 1 {
		t.Fatalf("Tick 1: admitted=%d err=%v", n, err)
	}
	if l.Room("r1").LastFloor() != 1 {
		t.Errorf("Expected lastFloor 1, got %d", l.Room("r1").LastFloor())
	}

	if n, err := f.Fetch(ctx, "r1"); err != nil || n != 1 {
		t.Fatalf("Tick 2: admitted=%d err=%v", n, err)
	}
	if l.Room("r1").LastFloor() != 2 {
		t.Errorf("Expected lastFloor 2, got %d", l.Room("r1").LastFloor())
	}

	if got := rec.next(t); len(got) != 1 || got[0] != 1 {
		t.Errorf("Unexpected first batch %v", got)
	}
	if got := rec.next(t); len(got) != 1 || got[0] != 2 {
		t.Errorf("Expected only floor 2 in second batch, got %v", got)
	}

	floors := fr.requestedFloors()
	if len(floors) != 2 || floors[0] != 0 || floors[1] != 1 {
		t.Errorf("Expected cursor 0 then 1, got %v", floors)
	}
}

func TestFetchIdenticalTicksRenderOnce(t *testing.T) {
	fr := &fakeRoom{responses: []func(http.ResponseWriter){items(4, 5, 6)}}
	rec := newRecorder()
	f, _ := newFetcher(t, fr, rec, clock.NewMock())

	f.Fetch(context.Background(), "r1")
	n, _ := f.Fetch(context.Background(), "r1")
	if n != 0 {
		t.Errorf("Expected nothing admitted on the repeated tick, got %d", n)
	}
	if rec.count() != 1 {
		t.Errorf("Expected a single delivered batch, got %d", rec.count())
	}
}

func TestFetchMalformedPayloadIsNoop(t *testing.T) {
	fr := &fakeRoom{responses: []func(http.ResponseWriter){raw(200, `{"data":{"floor":9}}`)}}
	rec := newRecorder()
	f, l := newFetcher(t, fr, rec, clock.NewMock())

	n, err := f.Fetch(context.Background(), "r1")
	if err != nil || n != 0 {
		t.Errorf("Expected silent no-op, got n=%d err=%v", n, err)
	}
	if rec.count() != 0 || l.Room("r1").LastFloor() != 0 {
		t.Error("Expected no delivery and untouched watermark")
	}
}

func TestFetchNetworkFailure(t *testing.T) {
	fr := &fakeRoom{responses: []func(http.ResponseWriter){raw(502, "bad gateway")}}
	rec := newRecorder()
	f, _ := newFetcher(t, fr, rec, clock.NewMock())

	if _, err := f.Fetch(context.Background(), "r1"); err == nil {
		t.Error("Expected an error for a 502")
	}
	if rec.count() != 0 {
		t.Error("Expected no delivery")
	}
}

func TestStartPollsOnInterval(t *testing.T) {
	fr := &fakeRoom{responses: []func(http.ResponseWriter){
		raw(500, "down"),
		items(1),
		items(1, 2, 3),
	}}
	rec := newRecorder()
	mock := clock.NewMock()
	f, l := newFetcher(t, fr, rec, mock)

	if err := f.Start(context.Background(), "r1"); err != nil {
		t.Fatalf("Failed to start: %v", err)
	}
	defer f.Stop()
	if err := f.Start(context.Background(), "r1"); err != ErrRunning {
		t.Errorf("Expected ErrRunning, got %v", err)
	}

	waitRequests(t, fr, 1)

	mock.Add(DefaultInterval)
	if got := rec.next(t); len(got) != 1 || got[0] != 1 {
		t.Errorf("Expected floor 1 after the failed first fetch, got %v", got)
	}

	mock.Add(DefaultInterval)
	if got := rec.next(t); len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Errorf("Expected floors 2,3 in order, got %v", got)
	}
	if l.Room("r1").LastFloor() != 3 {
		t.Errorf("Expected lastFloor 3, got %d", l.Room("r1").LastFloor())
	}
}

func TestStopCancelsTicker(t *testing.T) {
	fr := &fakeRoom{responses: []func(http.ResponseWriter){items()}}
	mock := clock.NewMock()
	f, _ := newFetcher(t, fr, newRecorder(), mock)

	f.Start(context.Background(), "r1")
	waitRequests(t, fr, 1)
	f.Stop()
	f.Stop()

	mock.Add(3 * DefaultInterval)
	time.Sleep(20 * time.Millisecond)
	if n := len(fr.requestedFloors()); n != 1 {
		t.Errorf("Expected no request after Stop, got %d total", n)
	}
}

func waitRequests(t *testing.T, fr *fakeRoom, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for len(fr.requestedFloors()) < n {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %d requests", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (fn roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return fn(r)
}

func TestCancelledFetchKeepsWatermark(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	// the response is already in hand when the fetch is stopped
	transport := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		w := httptest.NewRecorder()
		items(1, 2, 3)(w)
		cancel()
		return w.Result(), nil
	})

	rec := newRecorder()
	l := ledger.New()
	f := New("http://live.test", l, rec, Options{
		Clock:      clock.NewMock(),
		HTTPClient: &http.Client{Transport: transport},
		Logger:     zerolog.Nop(),
	})

	if n, err := f.Fetch(ctx, "r1"); err == nil || n != 0 {
		t.Errorf("Expected a cancelled fetch to admit nothing, got n=%d err=%v", n, err)
	}
	if l.Room("r1").LastFloor() != 0 {
		t.Errorf("Expected watermark untouched, got %d", l.Room("r1").LastFloor())
	}
	if rec.count() != 0 {
		t.Error("Expected no delivery")
	}

	f.http.Transport = roundTripFunc(func(r *http.Request) (*http.Response, error) {
		w := httptest.NewRecorder()
		items(1, 2, 3)(w)
		return w.Result(), nil
	})
	if n, err := f.Fetch(context.Background(), "r1"); err != nil || n != 3 {
		t.Errorf("Expected the next fetch to admit all 3, got n=%d err=%v", n, err)
	}
}
