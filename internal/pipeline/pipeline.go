// Package pipeline drives a session's script one event at a time and turns
// its results into state changes.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DoyleJ11/tabletop-server/internal/engine"
	"github.com/DoyleJ11/tabletop-server/internal/game"
	"github.com/DoyleJ11/tabletop-server/internal/protocol"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrEngineState = errors.New("engine not paused after start")
var ErrPipelineClosed = errors.New("pipeline closed")

const (
	PlayerIndexField = "playerIdx"

	EventInitialize = "initialize"
	EventNewPlayer  = "new_player"
	EventTimeout    = "timeout"
)

// ScriptInvocationError is reported when the script fails while handling an
// event. The pipeline keeps running.
type ScriptInvocationError struct {
	Event string
	Err   error
}

func (e *ScriptInvocationError) Error() string {
	return fmt.Sprintf("script event %q: %v", e.Event, e.Err)
}

func (e *ScriptInvocationError) Unwrap() error { return e.Err }

// Handler consumes the pipeline's output. Both methods are called from the
// pipeline goroutine, in event order.
type Handler interface {
	Processed(changes []StateChange)
	ScriptError(err error)
}

type Timer interface {
	Stop() bool
}

// Clock schedules timeout callbacks.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

func (systemClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

type Option func(*Pipeline)

func WithClock(c Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.log = l }
}

// WithQueueSize sets the inbound buffer. Enqueue blocks while it is full.
func WithQueueSize(n int) Option {
	return func(p *Pipeline) { p.inbox = make(chan protocol.Incoming, n) }
}

type Pipeline struct {
	session    *game.Session
	engine     engine.Engine
	handler    Handler
	translator *Translator
	clock      Clock
	log        *zap.Logger

	inbox     chan protocol.Incoming
	done      chan struct{}
	exited    chan struct{}
	closeOnce sync.Once
	started   atomic.Bool
	finished  atomic.Bool

	mu        sync.Mutex
	timers    map[uint64]Timer
	nextTimer uint64
}

func New(s *game.Session, e engine.Engine, h Handler, opts ...Option) *Pipeline {
	p := &Pipeline{
		session: s,
		engine:  e,
		handler: h,
		clock:   systemClock{},
		log:     zap.NewNop(),
		inbox:   make(chan protocol.Incoming, 64),
		done:    make(chan struct{}),
		exited:  make(chan struct{}),
		timers:  map[uint64]Timer{},
	}
	for _, opt := range opts {
		opt(p)
	}
	p.translator = NewTranslator(s, p.schedule)
	return p
}

// Start loads and runs the script, then begins processing messages with a
// synthesized SessionStarted. The loop ends when ctx is done, the script
// finishes or Close is called.
func (p *Pipeline) Start(ctx context.Context, script []byte) error {
	if p.started.Load() {
		return fmt.Errorf("%w: already started", ErrEngineState)
	}
	if err := p.engine.LoadScript(script); err != nil {
		return err
	}
	if err := p.engine.Run(); err != nil {
		return err
	}
	if st := p.engine.State(); st != engine.Paused {
		return fmt.Errorf("%w: state is %s", ErrEngineState, st)
	}

	p.started.Store(true)
	go p.loop(ctx)
	return p.Enqueue(protocol.SessionStarted{})
}

// Enqueue is safe for concurrent use.
func (p *Pipeline) Enqueue(msg protocol.Incoming) error {
	if p.finished.Load() {
		return ErrPipelineClosed
	}
	select {
	case <-p.done:
		return ErrPipelineClosed
	case <-p.exited:
		return ErrPipelineClosed
	default:
	}

	select {
	case p.inbox <- msg:
		return nil
	case <-p.done:
		return ErrPipelineClosed
	case <-p.exited:
		return ErrPipelineClosed
	}
}

// Done is closed once the loop has exited.
func (p *Pipeline) Done() <-chan struct{} { return p.exited }

// Finished reports whether the script has ended the game.
func (p *Pipeline) Finished() bool { return p.finished.Load() }

// Close stops the loop, waiting for an in-flight event, cancels pending
// timeouts and closes the engine.
func (p *Pipeline) Close() {
	p.closeOnce.Do(func() {
		close(p.done)
		if p.started.Load() {
			<-p.exited
		}
		p.stopTimers()
		p.engine.Close()
	})
}

func (p *Pipeline) loop(ctx context.Context) {
	defer close(p.exited)

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.done:
			return
		case msg := <-p.inbox:
			p.process(msg)
			if p.engine.State() == engine.Finished {
				p.finished.Store(true)
				p.log.Info("script finished")
				return
			}
		}
	}
}

func (p *Pipeline) process(msg protocol.Incoming) {
	name, ok := eventName(msg)
	if !ok {
		p.log.Debug("message has no script event", zap.String("type", fmt.Sprintf("%T", msg)))
		return
	}

	payload := msg.Payload()
	if payload == nil {
		payload = map[string]any{}
	}
	if sender := msg.Sender(); sender != uuid.Nil {
		if seat, ok := p.session.SeatIndex(sender); ok {
			payload[PlayerIndexField] = seat
		}
	}

	results, err := p.raise(name, payload)
	if err != nil {
		p.log.Warn("script error", zap.String("event", name), zap.Error(err))
		p.handler.ScriptError(err)
		return
	}
	if results == nil {
		return
	}

	changes, err := p.translator.Translate(results)
	if err != nil {
		p.log.Warn("untranslatable results", zap.String("event", name), zap.Error(err))
		p.handler.ScriptError(fmt.Errorf("event %q: %w", name, err))
	}
	p.handler.Processed(changes)
}

func (p *Pipeline) raise(name string, payload map[string]any) (results []any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ScriptInvocationError{Event: name, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	results, err = p.engine.RaiseEvent(name, payload)
	if err != nil {
		return nil, &ScriptInvocationError{Event: name, Err: err}
	}
	return results, nil
}

func eventName(msg protocol.Incoming) (string, bool) {
	switch m := msg.(type) {
	case protocol.SessionStarted:
		return EventInitialize, true
	case protocol.ClientReady:
		return EventNewPlayer, true
	case protocol.TimeoutElapsed:
		return EventTimeout, true
	case protocol.Custom:
		return m.ID, m.ID != ""
	default:
		return "", false
	}
}

// schedule arms a one shot timer that feeds a TimeoutElapsed back through
// the queue.
func (p *Pipeline) schedule(seconds int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	select {
	case <-p.done:
		return
	default:
	}

	id := p.nextTimer
	p.nextTimer++
	p.timers[id] = p.clock.AfterFunc(time.Duration(seconds)*time.Second, func() {
		p.mu.Lock()
		delete(p.timers, id)
		p.mu.Unlock()

		if err := p.Enqueue(protocol.TimeoutElapsed{Seconds: seconds}); err != nil {
			p.log.Debug("timeout dropped", zap.Int("seconds", seconds), zap.Error(err))
		}
	})
}

func (p *Pipeline) stopTimers() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, t := range p.timers {
		t.Stop()
		delete(p.timers, id)
	}
}
