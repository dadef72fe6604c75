// Package poll is the pull half of delivery: a cursor-based fetch of the
// room's messages newer than the watermark, repeated on a fixed interval.
package poll

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/cloudzz-dev/cldzlive/internal/client/ledger"
	"github.com/cloudzz-dev/cldzlive/internal/client/message"
	"github.com/cloudzz-dev/cldzlive/internal/client/metrics"
)

const (
	DefaultInterval = 5 * time.Second
	roomChatPath    = "/api/chat/get_room_chat/"
)

var ErrRunning = errors.New("poller already running")

// Sink receives the messages a fetch admitted, in response order.
type Sink interface {
	DeliverBatch(roomID string, batch []message.Message)
}

type SinkFunc func(roomID string, batch []message.Message)

func (fn SinkFunc) DeliverBatch(roomID string, batch []message.Message) {
	fn(roomID, batch)
}

type Options struct {
	Interval   time.Duration
	Clock      clock.Clock
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

type Fetcher struct {
	baseURL string
	ledger  *ledger.Ledger
	sink    Sink

	interval time.Duration
	clock    clock.Clock
	http     *http.Client
	log      zerolog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
	wg      sync.WaitGroup
}

func New(baseURL string, l *ledger.Ledger, sink Sink, opts Options) *Fetcher {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	return &Fetcher{
		baseURL:  strings.TrimRight(baseURL, "/"),
		ledger:   l,
		sink:     sink,
		interval: opts.Interval,
		clock:    opts.Clock,
		http:     opts.HTTPClient,
		log:      opts.Logger,
	}
}

// Start fetches once right away and then on every tick until Stop. Fetches
// are not serialized: a slow response may still be in flight when the next
// tick fires.
func (f *Fetcher) Start(ctx context.Context, roomID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return ErrRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.running = true

	ticker := f.clock.Ticker(f.interval)
	f.wg.Add(1)
	go f.loop(ctx, roomID, ticker)
	return nil
}

// Stop cancels the ticker and in-flight requests and returns once no fetch
// can deliver anymore.
func (f *Fetcher) Stop() {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return
	}
	f.cancel()
	f.running = false
	f.mu.Unlock()

	f.wg.Wait()
}

func (f *Fetcher) loop(ctx context.Context, roomID string, ticker *clock.Ticker) {
	defer f.wg.Done()
	defer ticker.Stop()

	f.spawn(ctx, roomID)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.spawn(ctx, roomID)
		}
	}
}

func (f *Fetcher) spawn(ctx context.Context, roomID string) {
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		if _, err := f.Fetch(ctx, roomID); err != nil && ctx.Err() == nil {
			f.log.Warn().Err(err).Str("room", roomID).Msg("[poll] fetch failed")
		}
	}()
}

// Fetch performs one pull for roomID and forwards the admitted items. It
// returns how many were admitted. A payload whose data is not a list is a
// no-op, not an error.
func (f *Fetcher) Fetch(ctx context.Context, roomID string) (int, error) {
	wm := f.ledger.Room(roomID)

	body, err := f.get(ctx, roomID, wm.LastFloor())
	if err != nil {
		metrics.PollRequests.WithLabelValues("error").Inc()
		return 0, err
	}

	items, err := message.DecodePollResponse(body)
	if err != nil {
		metrics.PollRequests.WithLabelValues("malformed").Inc()
		f.log.Debug().Err(err).Str("room", roomID).Msg("[poll] ignoring payload")
		return 0, nil
	}
	metrics.PollRequests.WithLabelValues("ok").Inc()

	// a stopped fetch must leave the watermark alone so a later Start
	// fetches the same items again
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var batch []message.Message
	for _, m := range items {
		if !wm.Admit(m) {
			metrics.PollItems.WithLabelValues("skipped").Inc()
			continue
		}
		metrics.PollItems.WithLabelValues("admitted").Inc()
		batch = append(batch, m)
	}

	if len(batch) == 0 {
		return 0, nil
	}
	f.sink.DeliverBatch(roomID, batch)
	f.log.Debug().Str("room", roomID).Int("count", len(batch)).Int("last_floor", wm.LastFloor()).Msg("[poll] delivered")
	return len(batch), nil
}

func (f *Fetcher) get(ctx context.Context, roomID string, lastFloor int) ([]byte, error) {
	q := url.Values{}
	q.Set("room_id", roomID)
	q.Set("last_floor", strconv.Itoa(lastFloor))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+roomChatPath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("get room chat: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
