// Package session runs one game session: its pipeline, its state and the
// registry of players that receive its changes.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/DoyleJ11/tabletop-server/internal/engine"
	"github.com/DoyleJ11/tabletop-server/internal/game"
	"github.com/DoyleJ11/tabletop-server/internal/pipeline"
	"github.com/DoyleJ11/tabletop-server/internal/protocol"
	"github.com/DoyleJ11/tabletop-server/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrNotConnected = errors.New("player not connected")
var ErrSessionEnded = errors.New("session ended")

const storeTimeout = 2 * time.Second

type Option func(*Runtime)

func WithLogger(l *zap.Logger) Option {
	return func(r *Runtime) { r.log = l }
}

func WithStore(s storage.Store) Option {
	return func(r *Runtime) { r.store = s }
}

// WithOutboxSize sets how many encoded frames may wait for a slow client
// before it is dropped.
func WithOutboxSize(n int) Option {
	return func(r *Runtime) { r.outboxSize = n }
}

func WithPipelineOptions(opts ...pipeline.Option) Option {
	return func(r *Runtime) { r.pipeOpts = append(r.pipeOpts, opts...) }
}

// Runtime wires a session to its pipeline and fans committed changes out
// to subscribed players.
type Runtime struct {
	Session *game.Session

	pipe       *pipeline.Pipeline
	store      storage.Store
	log        *zap.Logger
	outboxSize int
	pipeOpts   []pipeline.Option

	mu     sync.Mutex
	subs   map[uuid.UUID]*Subscriber
	closed bool

	ended     chan struct{}
	closeOnce sync.Once
}

func New(s *game.Session, e engine.Engine, opts ...Option) *Runtime {
	r := &Runtime{
		Session:    s,
		store:      storage.NewMemory(),
		log:        zap.NewNop(),
		outboxSize: 32,
		subs:       map[uuid.UUID]*Subscriber{},
		ended:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With(zap.String("session", s.ID.String()))
	r.pipe = pipeline.New(s, e, r, append([]pipeline.Option{pipeline.WithLogger(r.log)}, r.pipeOpts...)...)
	return r
}

// Start runs the script and marks the session started. When the script
// finishes the runtime closes itself.
func (r *Runtime) Start(ctx context.Context, script []byte) error {
	if err := r.pipe.Start(ctx, script); err != nil {
		return err
	}
	r.Session.SetState(game.StateStarted)
	r.save()

	go func() {
		<-r.pipe.Done()
		r.Close()
	}()
	return nil
}

func (r *Runtime) Enqueue(msg protocol.Incoming) error {
	return r.pipe.Enqueue(msg)
}

// Done is closed once the session has ended.
func (r *Runtime) Done() <-chan struct{} { return r.ended }

// Close ends the session and disconnects every subscriber.
func (r *Runtime) Close() {
	r.closeOnce.Do(func() {
		r.pipe.Close()

		r.mu.Lock()
		r.closed = true
		for id, sub := range r.subs {
			sub.close(ReasonEnded)
			delete(r.subs, id)
		}
		r.mu.Unlock()

		r.Session.SetState(game.StateEnded)
		r.save()
		r.log.Info("session ended")
		close(r.ended)
	})
}

// Subscribe registers the player's delivery outbox. An existing
// subscription for the same player is replaced and closed.
func (r *Runtime) Subscribe(playerID uuid.UUID) (*Subscriber, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrSessionEnded
	}

	if old, ok := r.subs[playerID]; ok {
		old.close(ReasonReplaced)
		r.log.Info("subscription replaced", zap.String("player", playerID.String()))
	}
	sub := newSubscriber(playerID, r.outboxSize)
	r.subs[playerID] = sub
	return sub, nil
}

// Unsubscribe removes sub if it is still the player's current subscription.
// It reports whether anything was removed.
func (r *Runtime) Unsubscribe(sub *Subscriber) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.subs[sub.PlayerID]; !ok || cur != sub {
		return false
	}
	delete(r.subs, sub.PlayerID)
	sub.close(ReasonLeft)
	return true
}

func (r *Runtime) Connected(playerID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.subs[playerID]
	return ok
}

// Broadcast sends msg to every subscriber without touching session state.
// It is used for connection notices that bypass the script.
func (r *Runtime) Broadcast(msg protocol.Outgoing) {
	r.deliver(pipeline.Broadcast(msg))
}

// SendTo delivers msg to one player only.
func (r *Runtime) SendTo(playerID uuid.UUID, msg protocol.Outgoing) error {
	frame, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[playerID]
	if !ok {
		return ErrNotConnected
	}
	r.pushLocked(sub, frame)
	return nil
}

// Processed commits each change and only then delivers it.
func (r *Runtime) Processed(changes []pipeline.StateChange) {
	for _, c := range changes {
		if err := pipeline.Apply(r.Session, c); err != nil {
			r.log.Warn("change not applied", zap.String("tag", c.Message.Tag()), zap.Error(err))
			continue
		}
		r.deliver(c)
	}
}

func (r *Runtime) ScriptError(err error) {
	rec := storage.ScriptError{
		SessionID: r.Session.ID,
		Message:   err.Error(),
		At:        time.Now().UTC(),
	}
	var sie *pipeline.ScriptInvocationError
	if errors.As(err, &sie) {
		rec.Event = sie.Event
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := r.store.AppendScriptError(ctx, rec); err != nil {
		r.log.Error("store script error", zap.Error(err))
	}
}

func (r *Runtime) deliver(c pipeline.StateChange) {
	if c.Target == pipeline.NoOne {
		return
	}
	frame, err := protocol.Encode(c.Message)
	if err != nil {
		r.log.Error("encode change", zap.String("tag", c.Message.Tag()), zap.Error(err))
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, sub := range r.subs {
		if c.Includes(id) {
			r.pushLocked(sub, frame)
		}
	}
}

func (r *Runtime) pushLocked(sub *Subscriber, frame []byte) {
	select {
	case sub.out <- frame:
	default:
		// Client is slow/full - drop them.
		r.log.Warn("dropping slow subscriber", zap.String("player", sub.PlayerID.String()))
		delete(r.subs, sub.PlayerID)
		sub.close(ReasonSlow)
	}
}

// Record is the persisted view of the session.
func (r *Runtime) Record() storage.SessionRecord {
	info := r.Session.Info()
	rec := storage.SessionRecord{
		ID:         info.ID,
		GameName:   info.GameName,
		MasterName: info.GameMasterName,
		State:      info.State,
		Seats:      info.MaxPlayersCount,
		Players:    info.PlayersCount,
		StartedAt:  info.StartedAt.UTC(),
	}
	if info.State == string(game.StateEnded) {
		now := time.Now().UTC()
		rec.EndedAt = &now
	}
	return rec
}

func (r *Runtime) save() {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := r.store.SaveSession(ctx, r.Record()); err != nil {
		r.log.Error("save session record", zap.Error(err))
	}
}
