// Package conn owns the push channel: a WebSocket to the room with bounded,
// fixed-delay reconnection. All state transitions happen on one event-loop
// goroutine; dials, reads and timers report back to it as events.
package conn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/cloudzz-dev/cldzlive/internal/client/message"
	"github.com/cloudzz-dev/cldzlive/internal/client/metrics"
)

const (
	DefaultReconnectDelay = 2 * time.Second
	DefaultMaxAttempts    = 5

	closeReason  = "User left the chat"
	writeTimeout = time.Second
)

var (
	ErrNotOpen        = errors.New("push channel is not open")
	ErrAlreadyStarted = errors.New("push channel already started")
)

// Conn is the part of *websocket.Conn the manager uses.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

type DialFunc func(ctx context.Context, url string) (Conn, error)

func DefaultDial(ctx context.Context, url string) (Conn, error) {
	c, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Sink receives push messages in arrival order. They bypass the ledger.
type Sink interface {
	DeliverPush(m message.Message)
}

type SinkFunc func(m message.Message)

func (fn SinkFunc) DeliverPush(m message.Message) {
	fn(m)
}

type Options struct {
	ReconnectDelay time.Duration
	MaxAttempts    int
	Clock          clock.Clock
	Dial           DialFunc
	Logger         zerolog.Logger

	// OnStateChange runs on the event loop; it must not call back into the
	// Manager.
	OnStateChange func(State)
}

// Endpoint builds <scheme>://<host>/ws/chat/<roomID>/ from a server URL,
// mapping http to ws and https to wss.
func Endpoint(server, roomID string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return u.Scheme + "://" + u.Host + "/ws/chat/" + url.PathEscape(roomID) + "/", nil
}

// events handled by the loop
type (
	dialResult struct {
		gen  int
		conn Conn
		err  error
	}
	connClosed struct {
		gen int
		err error
	}
	reconnectDue struct{ gen int }
	sendRequest  struct {
		payload message.Outbound
		reply   chan error
	}
	disconnectRequest struct{}
)

type Manager struct {
	server string
	sink   Sink

	delay       time.Duration
	maxAttempts int
	clock       clock.Clock
	dial        DialFunc
	log         zerolog.Logger
	onState     func(State)

	events   chan any
	quit     chan struct{}
	quitOnce sync.Once
	done     chan struct{}
	pumps    sync.WaitGroup

	// drained is set once the loop has stopped reading events; post
	// refuses from then on.
	postMu  sync.RWMutex
	drained bool

	mu       sync.Mutex
	state    State
	degraded bool
	started  bool

	// owned by the loop goroutine
	url      string
	cancel   context.CancelFunc
	conn     Conn
	gen      int
	failures int
	timer    *clock.Timer
}

func New(server string, sink Sink, opts Options) *Manager {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Dial == nil {
		opts.Dial = DefaultDial
	}
	return &Manager{
		server:      server,
		sink:        sink,
		delay:       opts.ReconnectDelay,
		maxAttempts: opts.MaxAttempts,
		clock:       opts.Clock,
		dial:        opts.Dial,
		log:         opts.Logger,
		onState:     opts.OnStateChange,
		events:      make(chan any, 16),
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Degraded reports that reconnection was abandoned; only polling delivers
// from then on.
func (m *Manager) Degraded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.degraded
}

// Connect opens the push channel for roomID. Cancelling ctx tears the
// channel down like Disconnect.
func (m *Manager) Connect(ctx context.Context, roomID string) error {
	endpoint, err := Endpoint(m.server, roomID)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	m.mu.Unlock()

	loopCtx, cancel := context.WithCancel(ctx)
	m.url = endpoint
	m.cancel = cancel
	go m.run(loopCtx)
	return nil
}

// Send writes one outbound frame. It fails with ErrNotOpen unless the
// channel is open.
func (m *Manager) Send(payload message.Outbound) error {
	m.mu.Lock()
	started := m.started
	m.mu.Unlock()
	if !started {
		return ErrNotOpen
	}

	reply := make(chan error, 1)
	select {
	case m.events <- sendRequest{payload: payload, reply: reply}:
	case <-m.done:
		return ErrNotOpen
	}
	select {
	case err := <-reply:
		return err
	case <-m.done:
		return ErrNotOpen
	}
}

// Disconnect sends a normal closure, cancels any pending reconnect and
// returns once the event loop has stopped.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if !m.started {
		m.started = true
		m.mu.Unlock()
		m.setState(Terminated)
		close(m.done)
		return
	}
	m.mu.Unlock()

	select {
	case m.events <- disconnectRequest{}:
	case <-m.done:
	}
	<-m.done
}

func (m *Manager) run(ctx context.Context) {
	defer func() {
		m.stop()
		m.drain()
		m.pumps.Wait()
		close(m.done)
	}()

	m.startDial(ctx)
	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			return
		case ev := <-m.events:
			switch ev := ev.(type) {
			case dialResult:
				m.onDial(ctx, ev)
			case connClosed:
				m.onClosed(ev)
			case reconnectDue:
				m.onReconnectDue(ctx, ev)
			case sendRequest:
				ev.reply <- m.write(ev.payload)
			case disconnectRequest:
				m.shutdown()
				return
			}
		}
		if m.State() == Terminated {
			return
		}
	}
}

// post hands an event to the loop; it reports false once the loop is
// stopping, and the caller keeps ownership of anything the event carries.
func (m *Manager) post(ev any) bool {
	m.postMu.RLock()
	defer m.postMu.RUnlock()
	if m.drained {
		return false
	}
	select {
	case m.events <- ev:
		return true
	case <-m.quit:
		return false
	}
}

// drain runs after the loop has stopped: it closes out posting and
// releases whatever the queued events still hold.
func (m *Manager) drain() {
	m.postMu.Lock()
	m.drained = true
	m.postMu.Unlock()

	for {
		select {
		case ev := <-m.events:
			switch ev := ev.(type) {
			case dialResult:
				if ev.conn != nil {
					ev.conn.Close()
				}
			case sendRequest:
				ev.reply <- ErrNotOpen
			}
		default:
			return
		}
	}
}

func (m *Manager) stop() {
	m.quitOnce.Do(func() { close(m.quit) })
	m.cancel()
}

func (m *Manager) startDial(ctx context.Context) {
	m.gen++
	gen := m.gen
	m.setState(Connecting)
	m.log.Debug().Str("url", m.url).Int("failures", m.failures).Msg("[conn] dialing")

	go func() {
		c, err := m.dial(ctx, m.url)
		if !m.post(dialResult{gen: gen, conn: c, err: err}) && c != nil {
			c.Close()
		}
	}()
}

func (m *Manager) onDial(ctx context.Context, ev dialResult) {
	if ev.gen != m.gen || m.State() != Connecting {
		if ev.conn != nil {
			ev.conn.Close()
		}
		return
	}
	if ev.err != nil {
		m.log.Warn().Err(ev.err).Msg("[conn] dial failed")
		m.onFailure()
		return
	}

	m.conn = ev.conn
	m.failures = 0
	m.setState(Open)
	m.log.Info().Str("url", m.url).Msg("[conn] open")

	m.pumps.Add(1)
	go m.readPump(ev.gen, ev.conn)
}

func (m *Manager) onClosed(ev connClosed) {
	if ev.gen != m.gen || m.State() != Open {
		return
	}
	m.conn.Close()
	m.conn = nil
	m.log.Warn().Err(ev.err).Msg("[conn] closed unexpectedly")
	m.onFailure()
}

// onFailure counts one close event. The channel is given up on the
// maxAttempts-th consecutive one.
func (m *Manager) onFailure() {
	m.failures++
	if m.failures >= m.maxAttempts {
		m.setState(ReconnectPending)
		m.mu.Lock()
		m.degraded = true
		m.mu.Unlock()
		m.setState(Terminated)
		m.log.Error().Int("attempts", m.failures).Msg("[conn] max reconnect attempts reached, giving up")
		return
	}

	gen := m.gen
	m.timer = m.clock.AfterFunc(m.delay, func() {
		m.post(reconnectDue{gen: gen})
	})
	metrics.ReconnectAttempts.Inc()
	m.log.Info().Int("attempt", m.failures).Int("max", m.maxAttempts).Msg("[conn] reconnect scheduled")
	m.setState(ReconnectPending)
}

func (m *Manager) onReconnectDue(ctx context.Context, ev reconnectDue) {
	if ev.gen != m.gen || m.State() != ReconnectPending {
		return
	}
	m.timer = nil
	m.startDial(ctx)
}

func (m *Manager) write(payload message.Outbound) error {
	if m.State() != Open || m.conn == nil {
		return ErrNotOpen
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode outbound frame: %w", err)
	}
	if err := m.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write outbound frame: %w", err)
	}
	return nil
}

func (m *Manager) shutdown() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.stop()

	if m.conn != nil {
		if m.State() == Open {
			m.setState(Closing)
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, closeReason)
			if err := m.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout)); err != nil {
				m.log.Debug().Err(err).Msg("[conn] close frame not sent")
			}
		}
		m.conn.Close()
		m.conn = nil
	}
	m.setState(Terminated)
	m.log.Info().Msg("[conn] disconnected")
}

func (m *Manager) readPump(gen int, c Conn) {
	defer m.pumps.Done()
	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			m.post(connClosed{gen: gen, err: err})
			return
		}
		m.handleFrame(data)
	}
}

func (m *Manager) handleFrame(data []byte) {
	var f message.Frame
	if err := json.Unmarshal(data, &f); err != nil {
		metrics.PushFrames.WithLabelValues("malformed").Inc()
		m.log.Error().Err(err).Msg("[conn] malformed frame dropped")
		return
	}

	msg, err := message.FromPushFrame(f, m.clock.Now())
	if errors.Is(err, message.ErrUnknownFrame) {
		metrics.PushFrames.WithLabelValues("unknown").Inc()
		m.log.Warn().Str("type", f.Type).Msg("[conn] unknown frame type")
		return
	}
	if err != nil {
		metrics.PushFrames.WithLabelValues("malformed").Inc()
		m.log.Error().Err(err).Msg("[conn] malformed frame dropped")
		return
	}

	metrics.PushFrames.WithLabelValues(f.Type).Inc()
	m.sink.DeliverPush(msg)
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()

	metrics.ConnectionState.Set(float64(s))
	if m.onState != nil {
		m.onState(s)
	}
}
