package hub

import (
	"context"
	"errors"
	"fmt"

	"github.com/DoyleJ11/tabletop-server/internal/catalog"
	"github.com/DoyleJ11/tabletop-server/internal/engine"
	"github.com/DoyleJ11/tabletop-server/internal/game"
	"github.com/DoyleJ11/tabletop-server/internal/session"
	"github.com/DoyleJ11/tabletop-server/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrSessionNotFound = errors.New("session not found")
var ErrHubClosed = errors.New("hub closed")

type HubMsg interface{ isHubMsg() }

type RegisterSession struct {
	Runtime *session.Runtime
	Reply   chan error
}

type GetSession struct {
	ID    uuid.UUID
	Reply chan *session.Runtime
}

type ListSessions struct {
	Reply chan []*session.Runtime
}

type RemoveSession struct {
	ID uuid.UUID
}

type ShutdownHub struct {
	Reply chan struct{}
}

func (RegisterSession) isHubMsg() {}
func (GetSession) isHubMsg()      {}
func (ListSessions) isHubMsg()    {}
func (RemoveSession) isHubMsg()   {}
func (ShutdownHub) isHubMsg()     {}

type Option func(*Hub)

func WithEngines(f engine.Factory) Option {
	return func(h *Hub) { h.newEngine = f }
}

func WithStore(s storage.Store) Option {
	return func(h *Hub) { h.store = s }
}

func WithLogger(l *zap.Logger) Option {
	return func(h *Hub) { h.log = l }
}

// WithRuntimeOptions are applied to every session the hub starts.
func WithRuntimeOptions(opts ...session.Option) Option {
	return func(h *Hub) { h.runtimeOpts = append(h.runtimeOpts, opts...) }
}

// Hub owns the set of live sessions. The map is only touched by the hub
// goroutine.
type Hub struct {
	inbox    chan HubMsg
	sessions map[uuid.UUID]*session.Runtime
	ctx      context.Context
	cancel   context.CancelFunc

	catalog     *catalog.Catalog
	newEngine   engine.Factory
	store       storage.Store
	log         *zap.Logger
	runtimeOpts []session.Option
}

func NewHub(parent context.Context, cat *catalog.Catalog, opts ...Option) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:     make(chan HubMsg, 64),
		sessions:  make(map[uuid.UUID]*session.Runtime),
		ctx:       ctx,
		cancel:    cancel,
		catalog:   cat,
		newEngine: engine.NewLuaFactory(),
		store:     storage.NewMemory(),
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) Catalog() *catalog.Catalog { return h.catalog }

func (h *Hub) Store() storage.Store { return h.store }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case RegisterSession:
				id := msg.Runtime.Session.ID
				if _, ok := h.sessions[id]; ok {
					msg.Reply <- fmt.Errorf("session %s already registered", id)
					break
				}
				h.sessions[id] = msg.Runtime
				go h.watch(msg.Runtime)
				msg.Reply <- nil

			case GetSession:
				msg.Reply <- h.sessions[msg.ID] // May be nil

			case ListSessions:
				out := make([]*session.Runtime, 0, len(h.sessions))
				for _, rt := range h.sessions {
					out = append(out, rt)
				}
				msg.Reply <- out

			case RemoveSession:
				delete(h.sessions, msg.ID)

			case ShutdownHub:
				h.shutdown()
				h.cancel()
				close(msg.Reply)
				return
			}
		}
	}
}

func (h *Hub) shutdown() {
	for id, rt := range h.sessions {
		rt.Close()
		delete(h.sessions, id)
	}
}

// watch drops a session from the hub once it ends on its own.
func (h *Hub) watch(rt *session.Runtime) {
	select {
	case <-rt.Done():
		select {
		case h.inbox <- RemoveSession{ID: rt.Session.ID}:
		case <-h.ctx.Done():
		}
	case <-h.ctx.Done():
	}
}

func (h *Hub) send(m HubMsg) error {
	if h.ctx.Err() != nil {
		return ErrHubClosed
	}
	select {
	case h.inbox <- m:
		return nil
	case <-h.ctx.Done():
		return ErrHubClosed
	}
}

func (h *Hub) Register(rt *session.Runtime) error {
	reply := make(chan error, 1)
	if err := h.send(RegisterSession{Runtime: rt, Reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-h.ctx.Done():
		return ErrHubClosed
	}
}

func (h *Hub) Get(id uuid.UUID) (*session.Runtime, error) {
	reply := make(chan *session.Runtime, 1)
	if err := h.send(GetSession{ID: id, Reply: reply}); err != nil {
		return nil, err
	}
	select {
	case rt := <-reply:
		if rt == nil {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return rt, nil
	case <-h.ctx.Done():
		return nil, ErrHubClosed
	}
}

func (h *Hub) List() ([]*session.Runtime, error) {
	reply := make(chan []*session.Runtime, 1)
	if err := h.send(ListSessions{Reply: reply}); err != nil {
		return nil, err
	}
	select {
	case out := <-reply:
		return out, nil
	case <-h.ctx.Done():
		return nil, ErrHubClosed
	}
}

func (h *Hub) Remove(id uuid.UUID) {
	_ = h.send(RemoveSession{ID: id})
}

// Terminate ends a live session.
func (h *Hub) Terminate(id uuid.UUID) error {
	rt, err := h.Get(id)
	if err != nil {
		return err
	}
	rt.Close()
	h.Remove(id)
	return nil
}

// Shutdown closes every session and stops the hub.
func (h *Hub) Shutdown(ctx context.Context) error {
	reply := make(chan struct{})
	if err := h.send(ShutdownHub{Reply: reply}); err != nil {
		return nil // already stopped
	}
	select {
	case <-reply:
		return nil
	case <-h.ctx.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("hub shutdown: %w", ctx.Err())
	}
}

// StartSession loads a game package, runs its script and registers the new
// session.
func (h *Hub) StartSession(ctx context.Context, gameName, masterName string) (*session.Runtime, error) {
	pkg, err := h.catalog.Load(ctx, gameName)
	if err != nil {
		return nil, err
	}
	s, err := pkg.NewSession(game.NewMaster(masterName))
	if err != nil {
		return nil, err
	}

	opts := append([]session.Option{
		session.WithStore(h.store),
		session.WithLogger(h.log.Named("session")),
	}, h.runtimeOpts...)
	rt := session.New(s, h.newEngine(), opts...)

	// The session outlives the request that created it.
	if err := rt.Start(h.ctx, pkg.Script); err != nil {
		rt.Close()
		return nil, fmt.Errorf("start %s: %w", gameName, err)
	}
	if err := h.Register(rt); err != nil {
		rt.Close()
		return nil, err
	}
	h.log.Info("session started",
		zap.String("session", s.ID.String()),
		zap.String("game", gameName),
		zap.String("master", masterName))
	return rt, nil
}
