package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/DoyleJ11/tabletop-server/internal/hub"
	"github.com/DoyleJ11/tabletop-server/internal/pipeline"
	"github.com/DoyleJ11/tabletop-server/internal/protocol"
	"github.com/DoyleJ11/tabletop-server/internal/session"
	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Option func(*Coordinator)

func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) { c.log = l }
}

func WithReadLimit(n int64) Option {
	return func(c *Coordinator) { c.readLimit = n }
}

func WithWriteTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.writeTimeout = d }
}

// WithOriginPatterns allows cross origin clients, see websocket.AcceptOptions.
func WithOriginPatterns(patterns ...string) Option {
	return func(c *Coordinator) { c.origins = patterns }
}

type connKey struct {
	session uuid.UUID
	player  uuid.UUID
}

type conn struct {
	ws   *websocket.Conn
	once sync.Once
}

// close is safe to call more than once and from any goroutine.
func (c *conn) close(code websocket.StatusCode, reason string) {
	c.once.Do(func() { _ = c.ws.Close(code, reason) })
}

// Coordinator accepts player websockets and connects them to their session.
type Coordinator struct {
	hub          *hub.Hub
	log          *zap.Logger
	readLimit    int64
	writeTimeout time.Duration
	origins      []string

	mu    sync.Mutex
	conns map[connKey]*conn
}

func NewCoordinator(h *hub.Hub, opts ...Option) *Coordinator {
	c := &Coordinator{
		hub:          h,
		log:          zap.NewNop(),
		readLimit:    1 << 20,
		writeTimeout: 3 * time.Second,
		conns:        map[connKey]*conn{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// swap stores cn and returns the connection it replaced, if any.
func (c *Coordinator) swap(k connKey, cn *conn) *conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.conns[k]
	c.conns[k] = cn
	return prev
}

// release removes cn if it is still the registered connection.
func (c *Coordinator) release(k connKey, cn *conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conns[k] != cn {
		return false
	}
	delete(c.conns, k)
	return true
}

// Connections is the number of live sockets.
func (c *Coordinator) Connections() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.conns)
}

func (c *Coordinator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sessionID, err := uuid.Parse(q.Get("session"))
	if err != nil {
		http.Error(w, "missing or invalid session", http.StatusBadRequest)
		return
	}
	playerID, err := uuid.Parse(q.Get("player"))
	if err != nil {
		http.Error(w, "missing or invalid player", http.StatusBadRequest)
		return
	}

	rt, err := c.hub.Get(sessionID)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	if _, ok := rt.Session.Player(playerID); !ok {
		http.Error(w, "player has not joined this session", http.StatusForbidden)
		return
	}

	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: c.origins})
	if err != nil {
		return
	}
	wsConn.SetReadLimit(c.readLimit)

	log := c.log.With(zap.String("session", sessionID.String()), zap.String("player", playerID.String()))
	cn := &conn{ws: wsConn}
	defer cn.close(websocket.StatusNormalClosure, "bye")

	// Register before subscribing so the replaced socket's cleanup sees
	// it is no longer current.
	key := connKey{session: sessionID, player: playerID}
	if prev := c.swap(key, cn); prev != nil {
		// Closing waits for the peer's close frame; never hold up the new socket.
		go prev.close(websocket.StatusPolicyViolation, session.ReasonReplaced.String())
	}

	sub, err := rt.Subscribe(playerID)
	if err != nil {
		c.release(key, cn)
		cn.close(websocket.StatusGoingAway, err.Error())
		return
	}
	log.Info("player connected")

	defer func() {
		rt.Unsubscribe(sub)
		if !c.release(key, cn) {
			log.Info("replaced connection closed")
			return
		}
		if _, err := rt.Session.SetPlayerActive(playerID, false); err != nil {
			log.Debug("mark inactive", zap.Error(err))
		}
		rt.Broadcast(protocol.ClientDisconnected{SenderID: playerID})
		log.Info("player disconnected")
	}()

	// Writer goroutine
	writeCtx, writeCancel := context.WithCancel(r.Context())
	defer writeCancel()
	go c.writeLoop(writeCtx, cn, sub, log)

	c.readLoop(r.Context(), cn, rt, playerID, log)
}

func (c *Coordinator) writeLoop(ctx context.Context, cn *conn, sub *session.Subscriber, log *zap.Logger) {
	for frame := range sub.Outbox() {
		wctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
		err := cn.ws.Write(wctx, websocket.MessageText, frame)
		cancel()
		if err != nil {
			log.Debug("write failed", zap.Error(err))
			cn.close(websocket.StatusInternalError, "write failed")
			return
		}
	}

	switch reason := sub.Reason(); reason {
	case session.ReasonReplaced, session.ReasonSlow:
		log.Info("closing connection", zap.Stringer("reason", reason))
		cn.close(websocket.StatusPolicyViolation, reason.String())
	case session.ReasonEnded:
		cn.close(websocket.StatusGoingAway, reason.String())
	}
}

func (c *Coordinator) readLoop(ctx context.Context, cn *conn, rt *session.Runtime, playerID uuid.UUID, log *zap.Logger) {
	for {
		// Read returns only once every fragment of the message has arrived.
		_, data, err := cn.ws.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				log.Debug("read failed", zap.Error(err))
			}
			return
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			log.Debug("dropping frame", zap.Error(err))
			continue
		}
		msg = protocol.WithSender(msg, playerID)

		switch m := msg.(type) {
		case protocol.ClientReady:
			p, err := rt.Session.SetPlayerActive(playerID, true)
			if err != nil {
				log.Warn("ready from unknown player", zap.Error(err))
				return
			}
			rt.Broadcast(protocol.NewClientConnected(p))

		case protocol.RTCSignal:
			if err := rt.SendTo(m.TargetID, m); err != nil {
				log.Debug("rtc relay", zap.String("target", m.TargetID.String()), zap.Error(err))
			}
			continue
		}

		if err := rt.Enqueue(msg); err != nil {
			if errors.Is(err, pipeline.ErrPipelineClosed) {
				log.Info("session no longer accepts messages")
				return
			}
			log.Warn("enqueue", zap.Error(err))
		}
	}
}
