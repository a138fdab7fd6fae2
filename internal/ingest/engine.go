// Package ingest turns broker messages into live state and persisted
// readings. The Engine owns the broker session, routes each message to its
// location, applies the save gate and hands completed readings to a
// per-location writer.
package ingest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/weatherstation/internal/logic"
	"github.com/sweeney/weatherstation/internal/metrics"
	"github.com/sweeney/weatherstation/internal/mqtt"
	"github.com/sweeney/weatherstation/internal/status"
	"github.com/sweeney/weatherstation/internal/store"
)

const (
	// DefaultReconnectDelay is the wait before the single reconnect attempt
	// after a lost session.
	DefaultReconnectDelay = 5 * time.Second

	inboxSize       = 64
	resultsSize     = 16
	defaultWriteTTL = 10 * time.Second
)

// Refresher recomputes derived statistics.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Config configures an Engine.
type Config struct {
	Topics         logic.TopicSet
	SaveInterval   time.Duration
	ReconnectDelay time.Duration
	// WriteTimeout bounds a single insert. Zero means 10s.
	WriteTimeout time.Duration
	// Now overrides the clock in tests. Nil means time.Now.
	Now func() time.Time
}

type itemKind int

const (
	itemMessage itemKind = iota
	itemEvent
	// itemCall runs a function on the loop goroutine. It lets tests read
	// loop-owned state such as the gate without a lock.
	itemCall
)

// item is one entry of the engine inbox.
type item struct {
	kind    itemKind
	session uint64
	msg     mqtt.Message
	event   mqtt.Event
	call    func()
}

// Engine is the ingestion pipeline. Connect and Disconnect may be called
// from any goroutine; everything else runs on the goroutine calling Run.
type Engine struct {
	client    mqtt.Client
	store     store.Store
	tracker   *status.Tracker
	refresher Refresher
	metrics   *metrics.Metrics
	log       *zap.Logger
	now       func() time.Time

	topics         []string
	table          logic.TopicTable
	reconnectDelay time.Duration

	// Owned by the Run goroutine.
	gate *logic.Gate

	writers   map[logic.Location]*writer
	inbox     chan item
	results   chan writeResult
	refreshCh chan struct{}
	done      chan struct{}
	running   atomic.Bool

	// session identifies the current broker session. Messages and events
	// from older sessions are ignored.
	session atomic.Uint64

	// mu serializes the connection lifecycle.
	mu        sync.Mutex
	reconnect *time.Timer

	// viewMu orders message-driven view updates against Clear.
	viewMu sync.Mutex
}

// New creates an Engine. refresher may be nil.
func New(cfg Config, client mqtt.Client, s store.Store, tracker *status.Tracker, refresher Refresher, m *metrics.Metrics, logger *zap.Logger) *Engine {
	if cfg.Topics == (logic.TopicSet{}) {
		cfg.Topics = logic.DefaultTopics()
	}
	if cfg.SaveInterval <= 0 {
		cfg.SaveInterval = logic.DefaultSaveInterval
	}
	if cfg.ReconnectDelay < 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if m == nil {
		m = metrics.New()
	}

	e := &Engine{
		client:         client,
		store:          s,
		tracker:        tracker,
		refresher:      refresher,
		metrics:        m,
		log:            logger,
		now:            cfg.Now,
		topics:         cfg.Topics.List(),
		table:          cfg.Topics.Table(),
		reconnectDelay: cfg.ReconnectDelay,
		gate:           logic.NewGate(cfg.SaveInterval),
		writers:        make(map[logic.Location]*writer, len(logic.Locations)),
		inbox:          make(chan item, inboxSize),
		results:        make(chan writeResult, resultsSize),
		refreshCh:      make(chan struct{}, 1),
		done:           make(chan struct{}),
	}
	for _, loc := range logic.Locations {
		e.writers[loc] = newWriter(loc, s, cfg.WriteTimeout, logger)
	}
	return e
}

// Run processes the inbox until ctx is cancelled. It must be called once.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return fmt.Errorf("engine already running")
	}

	var wg sync.WaitGroup
	for _, w := range e.writers {
		wg.Add(1)
		go func(w *writer) {
			defer wg.Done()
			w.run(ctx, e.results)
		}(w)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		e.refreshLoop(ctx)
	}()

	defer func() {
		close(e.done)
		e.mu.Lock()
		e.stopReconnectLocked()
		e.mu.Unlock()
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case it := <-e.inbox:
			e.handleItem(ctx, it)
		case r := <-e.results:
			e.handleResult(r)
		}
	}
}

func (e *Engine) handleItem(ctx context.Context, it item) {
	switch it.kind {
	case itemMessage:
		e.handleMessage(it.session, it.msg)
	case itemEvent:
		e.handleEvent(ctx, it.session, it.event)
	case itemCall:
		it.call()
	}
}

// enqueue blocks until the loop accepts it or has stopped.
func (e *Engine) enqueue(it item) {
	select {
	case e.inbox <- it:
	case <-e.done:
	}
}

// sessionSink tags everything delivered by one broker session.
type sessionSink struct {
	e       *Engine
	session uint64
}

func (s sessionSink) HandleMessage(m mqtt.Message) {
	s.e.enqueue(item{kind: itemMessage, session: s.session, msg: m})
}

func (s sessionSink) HandleEvent(ev mqtt.Event) {
	s.e.enqueue(item{kind: itemEvent, session: s.session, event: ev})
}

// Connect opens a broker session and subscribes to the four topics. A
// failure is logged, leaves the status DISCONNECTED and is returned for
// the caller's information only.
func (e *Engine) Connect(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopReconnectLocked()
	return e.connectLocked(ctx)
}

func (e *Engine) connectLocked(ctx context.Context) error {
	if e.client.IsConnected() {
		return nil
	}

	session := e.session.Add(1)
	err := e.client.Connect(ctx, sessionSink{e: e, session: session})
	e.metrics.ConnectAttempt(err)
	if err != nil {
		e.connectFailed(err)
		return err
	}
	if err := e.client.Subscribe(e.topics); err != nil {
		e.client.Disconnect()
		err = fmt.Errorf("subscribe: %w", err)
		e.connectFailed(err)
		return err
	}

	e.tracker.SetConnection(status.Connected)
	e.metrics.SetConnected(true)
	e.log.Info("connected to broker", zap.Strings("topics", e.topics))
	e.requestRefresh()
	return nil
}

func (e *Engine) connectFailed(err error) {
	e.log.Error("connect to broker", zap.Error(err))
	e.tracker.SetConnection(status.Disconnected)
	e.tracker.SetError(err.Error())
	e.metrics.SetConnected(false)
}

// Disconnect closes the session and clears the live view. Calling it twice
// leaves the same state as calling it once. Pending writes are not
// cancelled.
func (e *Engine) Disconnect() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopReconnectLocked()

	e.viewMu.Lock()
	e.session.Add(1)
	e.client.Disconnect()
	e.tracker.Clear()
	e.viewMu.Unlock()

	e.metrics.SetConnected(false)
	e.log.Info("disconnected from broker")
}

func (e *Engine) stopReconnectLocked() {
	if e.reconnect != nil {
		e.reconnect.Stop()
		e.reconnect = nil
	}
}

func (e *Engine) handleEvent(ctx context.Context, session uint64, ev mqtt.Event) {
	if ev.Kind != mqtt.EventConnectionLost || session != e.session.Load() {
		return
	}

	e.metrics.ConnectionLost()
	e.metrics.SetConnected(false)
	e.tracker.SetConnection(status.Disconnected)
	e.log.Warn("broker connection lost",
		zap.Error(ev.Err),
		zap.Duration("reconnect_in", e.reconnectDelay),
	)

	// The lifecycle lock may be held by a Connect waiting on the transport,
	// which in turn may be waiting on this loop.
	go e.scheduleReconnect(ctx, session)
}

// scheduleReconnect arms the single reconnect attempt for a lost session.
func (e *Engine) scheduleReconnect(ctx context.Context, session uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session.Load() != session {
		return
	}
	e.stopReconnectLocked()
	e.reconnect = time.AfterFunc(e.reconnectDelay, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		// A Connect or Disconnect since the loss supersedes this attempt.
		if e.session.Load() != session || ctx.Err() != nil {
			return
		}
		e.reconnect = nil
		if err := e.connectLocked(ctx); err != nil {
			e.log.Warn("reconnect failed, staying disconnected", zap.Error(err))
		}
	})
}

func (e *Engine) handleMessage(session uint64, m mqtt.Message) {
	tag, ok := e.table.Resolve(m.Topic)
	if !ok {
		e.metrics.UnknownTopic()
		e.log.Debug("ignoring message on unknown topic", zap.String("topic", m.Topic))
		return
	}
	e.metrics.Message(m.Topic)

	value, formatted, err := logic.ParseValue(m.Payload)
	if err != nil {
		e.metrics.MalformedPayload(tag.Location.String())
		e.log.Warn("dropping message",
			zap.String("topic", m.Topic),
			zap.Stringer("location", tag.Location),
			zap.Error(err),
		)
		return
	}

	e.viewMu.Lock()
	if session != e.session.Load() {
		e.viewMu.Unlock()
		return
	}
	e.tracker.UpdateField(tag.Location, tag.Field, formatted)
	e.viewMu.Unlock()

	if r := e.gate.Update(tag.Location, tag.Field, value, e.now()); r != nil {
		e.log.Debug("queueing reading",
			zap.Stringer("location", r.Location),
			zap.Float64("temperature", *r.Temperature),
			zap.Float64("humidity", *r.Humidity),
		)
		if err := e.writers[r.Location].push(*r); err != nil {
			e.handleResult(writeResult{reading: *r, err: err})
		}
	}
}

func (e *Engine) handleResult(r writeResult) {
	loc := r.reading.Location
	if r.err != nil {
		e.gate.SaveFailed(loc)
		e.metrics.SaveFailed(loc.String())
		e.tracker.SetError(r.err.Error())
		e.log.Error("save reading, keeping pending values",
			zap.Stringer("location", loc),
			zap.Error(r.err),
		)
		return
	}

	e.gate.Saved(loc, r.reading.Timestamp)
	e.metrics.Saved(loc.String())
	e.log.Info("reading saved",
		zap.Stringer("location", loc),
		zap.Int64("id", r.reading.ID),
	)
	e.requestRefresh()
}

func (e *Engine) requestRefresh() {
	if e.refresher == nil {
		return
	}
	select {
	case e.refreshCh <- struct{}{}:
	default:
	}
}

func (e *Engine) refreshLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.refreshCh:
			if err := e.refresher.Refresh(ctx); err != nil {
				e.log.Warn("refresh derived statistics", zap.Error(err))
			}
		}
	}
}
