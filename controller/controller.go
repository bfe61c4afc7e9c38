// Package controller owns the session state machine. It wraps the selected
// transport bridge, exposes start/pause/resume/cancel, forwards the bridge's
// event stream to the bus in emission order, and tracks elapsed time and
// basic metrics while a session is active. At most one session is
// non-terminal at any time, system-wide.
package controller

import (
	"context"
	"sync"
	"time"

	"github.com/mindmapper/conductor/bridge"
	"github.com/mindmapper/conductor/bus"
	"github.com/mindmapper/conductor/core"
	"github.com/mindmapper/conductor/keyring"
	"github.com/mindmapper/conductor/logging"
	"github.com/mindmapper/conductor/metrics"
)

// DefaultMetricsInterval is the period of metrics-update emissions while a
// session is executing or monitoring.
const DefaultMetricsInterval = time.Second

// Options configures a Controller.
type Options struct {
	// CostStore receives one CostRecord per completed session. Optional.
	CostStore core.CostStore
	// Keyring backs the HasAPIKey capability probe. Optional.
	Keyring keyring.Store
	// Metrics receives Prometheus instrumentation. Optional.
	Metrics *metrics.Collectors
	// MetricsInterval overrides the metrics-update emission period.
	MetricsInterval time.Duration
	// Logger receives controller diagnostics. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Controller drives sessions over one transport bridge.
type Controller struct {
	bridge   bridge.Bridge
	bus      *bus.Bus
	costs    core.CostStore
	keys     keyring.Store
	prom     *metrics.Collectors
	interval time.Duration
	logger   logging.Logger

	mu            sync.Mutex
	starting      bool
	session       *core.Session
	messageCount  int
	errorCount    int
	cancelPending bool
	stopTicker    context.CancelFunc

	subs []*bus.Subscription
	wg   sync.WaitGroup
}

// New constructs a Controller around a bridge and wires the control-plane
// topics (pause/resume/cancel/message requests) to its operations.
func New(b bridge.Bridge, eventBus *bus.Bus, optFns ...func(o *Options)) *Controller {
	opts := Options{
		MetricsInterval: DefaultMetricsInterval,
		Logger:          logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	c := &Controller{
		bridge:   b,
		bus:      eventBus,
		costs:    opts.CostStore,
		keys:     opts.Keyring,
		prom:     opts.Metrics,
		interval: opts.MetricsInterval,
		logger:   opts.Logger,
	}

	c.subs = append(c.subs,
		eventBus.Subscribe(bus.TopicPauseRequest, func(any) {
			if err := c.PauseSession(); err != nil {
				c.logger.Warn("pause request rejected", "error", err)
			}
		}),
		eventBus.Subscribe(bus.TopicResumeRequest, func(any) {
			if err := c.ResumeSession(); err != nil {
				c.logger.Warn("resume request rejected", "error", err)
			}
		}),
		eventBus.Subscribe(bus.TopicCancelRequest, func(any) {
			if _, err := c.CancelSession(context.Background()); err != nil {
				c.logger.Warn("cancel request failed", "error", err)
			}
		}),
		eventBus.Subscribe(bus.TopicMessage, func(payload any) {
			if msg, ok := payload.(core.MessagePayload); ok {
				c.AppendUserMessage(msg.Text)
			}
		}),
	)

	return c
}

// Close releases the controller's bus subscriptions and waits for the event
// pump of any finished session to drain.
func (c *Controller) Close() {
	for _, sub := range c.subs {
		sub.Unsubscribe()
	}
	c.wg.Wait()
}

// Session returns the current session, which may be nil before the first
// start.
func (c *Controller) Session() *core.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Status returns the current session status, idle before the first start.
func (c *Controller) Status() core.SessionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return core.StatusIdle
	}
	return c.session.CurrentStatus()
}

// HasAPIKey reports whether a key for the provider is configured; used as a
// capability probe before starting a remote-bridge session.
func (c *Controller) HasAPIKey(provider string) bool {
	if c.keys == nil {
		return false
	}
	_, ok := c.keys.Get(provider)
	return ok
}

// StartSession validates the bridge, transitions idle → initializing →
// executing and begins streaming. It fails with ErrAlreadyRunning while a
// session is non-terminal, and with SpawnError (leaving the status idle)
// when the transport is unavailable. A bridge rejection during execute
// transitions the session to failed.
func (c *Controller) StartSession(ctx context.Context, opts core.StartOptions) (*core.Session, error) {
	c.mu.Lock()
	if c.starting || (c.session != nil && !c.session.CurrentStatus().IsTerminal()) {
		c.mu.Unlock()
		return nil, core.ErrAlreadyRunning
	}
	c.starting = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.starting = false
		c.mu.Unlock()
	}()

	avail, err := c.bridge.DetectAvailability(ctx)
	if err != nil {
		return nil, &core.SpawnError{Err: err}
	}
	if !avail.Available {
		// Status stays idle so the caller can retry on another transport.
		return nil, &core.SpawnError{Err: errAvailability(avail.Reason)}
	}

	sess := core.NewSession("pending")
	sess.LastPrompt = opts.Prompt
	sess.LastOptions = opts
	sess.HandsOff = opts.HandsOff

	c.mu.Lock()
	c.session = sess
	c.messageCount = 0
	c.errorCount = 0
	c.cancelPending = false
	c.mu.Unlock()

	c.transition(sess, core.StatusInitializing)

	result, events, err := c.bridge.Execute(ctx, opts)
	if err != nil {
		c.transition(sess, core.StatusFailed)
		c.bus.Publish(bus.TopicSessionError, core.ErrorPayload{
			SessionID: sess.ID,
			Message:   err.Error(),
			Phase:     "start",
		})
		c.prom.RecordSessionEnd(core.StatusFailed)
		return nil, err
	}

	sess.ID = result.SessionID
	sess.PID = result.PID
	sess.StartedAt = time.Now()

	c.transition(sess, core.StatusExecuting)
	c.prom.RecordSessionStart()

	tickerCtx, stopTicker := context.WithCancel(context.Background())
	c.mu.Lock()
	c.stopTicker = stopTicker
	c.mu.Unlock()

	c.wg.Add(2)
	go c.pump(sess, events)
	go c.tick(tickerCtx, sess)

	c.logger.Info("session started", "session_id", sess.ID, "pid", sess.PID, "hands_off", sess.HandsOff)
	return sess, nil
}

// Retry restarts a session using the retained options of the previous
// failed or cancelled run.
func (c *Controller) Retry(ctx context.Context) (*core.Session, error) {
	c.mu.Lock()
	if c.session == nil {
		c.mu.Unlock()
		return nil, core.ErrInvalidTransition
	}
	opts := c.session.LastOptions
	c.mu.Unlock()
	return c.StartSession(ctx, opts)
}

// PauseSession is valid only from monitoring.
func (c *Controller) PauseSession() error {
	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()
	if sess == nil || sess.CurrentStatus() != core.StatusMonitoring {
		return core.ErrInvalidTransition
	}
	c.transition(sess, core.StatusPaused)
	return nil
}

// ResumeSession is valid only from paused.
func (c *Controller) ResumeSession() error {
	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()
	if sess == nil || sess.CurrentStatus() != core.StatusPaused {
		return core.ErrInvalidTransition
	}
	c.transition(sess, core.StatusMonitoring)
	return nil
}

// CancelSession requests cooperative termination. On an idle controller it
// returns {Cancelled: false} and causes no transition. The session stays
// non-terminal until the bridge acknowledges by closing its stream, at
// which point the status becomes cancelled.
func (c *Controller) CancelSession(ctx context.Context) (bridge.CancelResult, error) {
	c.mu.Lock()
	sess := c.session
	if sess == nil || sess.CurrentStatus().IsTerminal() || sess.CurrentStatus() == core.StatusIdle {
		c.mu.Unlock()
		return bridge.CancelResult{Cancelled: false, Reason: "no active session"}, nil
	}
	c.cancelPending = true
	c.mu.Unlock()

	res, err := c.bridge.Cancel(ctx)
	if err != nil || !res.Cancelled {
		// Delivery failed or the bridge had nothing in flight; a later
		// natural completion must not settle as cancelled.
		c.mu.Lock()
		c.cancelPending = false
		c.mu.Unlock()
		return res, err
	}
	c.logger.Info("cancellation requested", "session_id", sess.ID, "delivered", res.Cancelled)
	return res, nil
}

// Metrics returns the current session metrics snapshot.
func (c *Controller) Metrics() core.Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// AppendUserMessage routes user chat input into the active session
// transcript as a text progress event.
func (c *Controller) AppendUserMessage(text string) {
	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()
	if sess == nil || sess.CurrentStatus().IsTerminal() {
		return
	}
	ev := core.ProgressEvent{SessionID: sess.ID, Type: core.ProgressText, Payload: text}
	sess.AppendProgress(ev)
	c.mu.Lock()
	c.messageCount++
	c.mu.Unlock()
	c.bus.Publish(bus.TopicSessionProgress, ev)
}

// pump forwards the bridge stream to the bus in emission order and settles
// the terminal status when the stream closes.
func (c *Controller) pump(sess *core.Session, events <-chan bridge.Event) {
	defer c.wg.Done()

	var complete *bridge.CompleteInfo
	for ev := range events {
		switch ev.Kind {
		case bridge.KindStarted:
			c.bus.Publish(bus.TopicSessionStarted, *ev.Started)

		case bridge.KindProgress:
			sess.AppendProgress(*ev.Progress)
			c.mu.Lock()
			c.messageCount++
			c.mu.Unlock()
			c.prom.RecordProgress()
			// First output moves the session from executing to monitoring.
			if sess.CurrentStatus() == core.StatusExecuting {
				c.transition(sess, core.StatusMonitoring)
			}
			c.bus.Publish(bus.TopicSessionProgress, *ev.Progress)

		case bridge.KindError:
			c.mu.Lock()
			c.errorCount++
			c.mu.Unlock()
			c.prom.RecordError()
			c.bus.Publish(bus.TopicSessionError, *ev.Error)

		case bridge.KindApproval:
			c.bus.Publish(bus.TopicApprovalNeeded, *ev.Approval)

		case bridge.KindComplete:
			complete = ev.Complete
		}
	}

	c.settle(sess, complete)
}

// settle applies the terminal status after the bridge stream closed.
func (c *Controller) settle(sess *core.Session, complete *bridge.CompleteInfo) {
	c.mu.Lock()
	cancelPending := c.cancelPending
	stop := c.stopTicker
	c.stopTicker = nil
	c.mu.Unlock()
	if stop != nil {
		stop()
	}

	status := core.StatusFailed
	info := bridge.CompleteInfo{ExitCode: -1}
	if complete != nil {
		info = *complete
	}
	switch {
	case cancelPending || info.Cancelled:
		status = core.StatusCancelled
	case info.Success:
		status = core.StatusCompleted
	}

	c.transition(sess, status)
	c.prom.RecordSessionEnd(status)
	c.bus.Publish(bus.TopicSessionComplete, core.CompletePayload{
		SessionID: sess.ID,
		ExitCode:  info.ExitCode,
		Success:   info.Success,
	})

	if status == core.StatusCompleted {
		c.appendCost(sess, info)
	}
	c.logger.Info("session settled", "session_id", sess.ID, "status", string(status), "exit_code", info.ExitCode)
}

// appendCost writes the session's cost record. The controller is the only
// writer of the ledger while its session is active.
func (c *Controller) appendCost(sess *core.Session, info bridge.CompleteInfo) {
	if c.costs == nil {
		return
	}
	rec := core.CostRecord{
		SessionID: sess.ID,
		TotalCost: info.CostUSD,
		Model:     info.Model,
		Timestamp: time.Now().UTC(),
	}
	if info.Usage != nil {
		rec.InputTokens = info.Usage.PromptTokens
		rec.OutputTokens = info.Usage.CompletionTokens
		rec.TotalTokens = info.Usage.TotalTokens
	}
	if err := c.costs.Append(rec); err != nil {
		c.logger.Error("cost record append failed", "session_id", sess.ID, "error", err)
		return
	}
	c.prom.RecordCost(rec)
}

// tick emits metrics updates while the session is executing or monitoring.
func (c *Controller) tick(ctx context.Context, sess *core.Session) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status := sess.CurrentStatus()
			if status != core.StatusExecuting && status != core.StatusMonitoring {
				continue
			}
			c.mu.Lock()
			snapshot := c.snapshotLocked()
			c.mu.Unlock()
			c.bus.Publish(bus.TopicMetricsUpdate, core.MetricsPayload{SessionID: sess.ID, Metrics: snapshot})
		}
	}
}

func (c *Controller) snapshotLocked() core.Metrics {
	m := core.Metrics{MessageCount: c.messageCount, ErrorCount: c.errorCount}
	if c.session != nil && !c.session.StartedAt.IsZero() {
		m.Elapsed = time.Since(c.session.StartedAt)
	}
	return m
}

// transition applies a status edge and emits the state-change event.
// Illegal edges are logged and dropped; the machine never corrupts.
func (c *Controller) transition(sess *core.Session, next core.SessionStatus) {
	prev, err := sess.Transition(next)
	if err != nil {
		c.logger.Warn("illegal transition dropped", "session_id", sess.ID, "from", string(prev), "to", string(next))
		return
	}
	c.bus.Publish(bus.TopicStateChange, core.StateChangePayload{Previous: prev, Current: next})
}

// errAvailability wraps a probe failure reason as an error value.
type errAvailability string

func (e errAvailability) Error() string { return string(e) }
