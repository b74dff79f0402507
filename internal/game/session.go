package game

import (
	"errors"
	"fmt"
	"maps"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/DoyleJ11/tabletop-server/pkg/types"
	"github.com/google/uuid"
)

var ErrSeatUnavailable = errors.New("seat unavailable")
var ErrPlayerNotFound = errors.New("player not found")
var ErrPlayerExists = errors.New("player already seated")

type State string

const (
	StateCreated State = "created"
	StateStarted State = "started"
	StateEnded   State = "ended"
)

type ChatLine struct {
	Sender *Player // nil for lines produced by the game itself
	Text   string
	At     time.Time
}

// Session is the canonical state of one running game. Room content is only
// changed from the session's pipeline; players join and leave from request
// goroutines, so every accessor takes the session lock.
type Session struct {
	ID        uuid.UUID
	GameID    string
	StartedAt time.Time
	Master    *Master
	Objects   *Definitions

	mu      sync.RWMutex
	state   State
	room    *Room
	players []*Player
	active  *Player
	props   map[string]string
	chat    []ChatLine

	pickSeat func(n int) int
}

func NewSession(gameID string, master *Master, room *Room, defs *Definitions) *Session {
	return &Session{
		ID:        uuid.New(),
		GameID:    gameID,
		StartedAt: time.Now(),
		Master:    master,
		Objects:   defs,
		state:     StateCreated,
		room:      room,
		props:     map[string]string{},
		pickSeat:  rand.IntN,
	}
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) SetState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// AddPlayer seats p on a random free seat.
func (s *Session) AddPlayer(p *Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	free := s.room.FreeSeats()
	if len(free) == 0 {
		return ErrSeatUnavailable
	}
	return s.seatLocked(p, free[s.pickSeat(len(free))])
}

// AddPlayerAt seats p on a specific seat.
func (s *Session) AddPlayerAt(p *Player, seat int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seat < 0 || seat >= len(s.room.Seats) || s.room.Seats[seat] != nil {
		return fmt.Errorf("%w: %d", ErrSeatUnavailable, seat)
	}
	return s.seatLocked(p, seat)
}

func (s *Session) seatLocked(p *Player, seat int) error {
	if s.playerLocked(p.ID) != nil {
		return fmt.Errorf("%w: %s", ErrPlayerExists, p.ID)
	}
	p.SeatIndex = seat
	s.room.Seats[seat] = p
	s.players = append(s.players, p)
	return nil
}

func (s *Session) RemovePlayer(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.playerLocked(id)
	if p == nil {
		return fmt.Errorf("%w: %s", ErrPlayerNotFound, id)
	}
	s.players = slices.DeleteFunc(s.players, func(q *Player) bool { return q.ID == id })
	s.room.Seats[p.SeatIndex] = nil
	if s.active != nil && s.active.ID == id {
		s.active = nil
	}
	return nil
}

func (s *Session) Player(id uuid.UUID) (*Player, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p := s.playerLocked(id)
	return p, p != nil
}

func (s *Session) playerLocked(id uuid.UUID) *Player {
	for _, p := range s.players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// SeatIndex returns the seat of a known player.
func (s *Session) SeatIndex(id uuid.UUID) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p := s.playerLocked(id); p != nil {
		return p.SeatIndex, true
	}
	return 0, false
}

// PlayerAtSeat returns nil for empty or out of range seats.
func (s *Session) PlayerAtSeat(seat int) *Player {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if seat < 0 || seat >= len(s.room.Seats) {
		return nil
	}
	return s.room.Seats[seat]
}

func (s *Session) Players() []*Player {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.players)
}

func (s *Session) SeatCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.room.Seats)
}

// SetPlayerActive flips the active flag and returns the player as it looks
// afterwards.
func (s *Session) SetPlayerActive(id uuid.UUID, active bool) (types.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.playerLocked(id)
	if p == nil {
		return types.Player{}, fmt.Errorf("%w: %s", ErrPlayerNotFound, id)
	}
	p.Active = active
	return p.DTO(), nil
}

func (s *Session) ActivePlayer() *Player {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

func (s *Session) SetActivePlayer(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.playerLocked(id)
	if p == nil {
		return fmt.Errorf("%w: %s", ErrPlayerNotFound, id)
	}
	s.active = p
	return nil
}

func (s *Session) SetProperty(key, value string) {
	s.mu.Lock()
	s.props[key] = value
	s.mu.Unlock()
}

func (s *Session) Property(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.props[key]
	return v, ok
}

func (s *Session) Properties() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.props)
}

func (s *Session) AppendChat(line ChatLine) {
	if line.At.IsZero() {
		line.At = time.Now()
	}
	s.mu.Lock()
	s.chat = append(s.chat, line)
	s.mu.Unlock()
}

func (s *Session) Chat() []ChatLine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.chat)
}

func (s *Session) AddEntities(objs ...*Object) {
	s.mu.Lock()
	s.room.Entities = append(s.room.Entities, objs...)
	s.mu.Unlock()
}

func (s *Session) RemoveEntities(ids ...string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room.RemoveEntities(ids...)
}

// MoveEntity applies whichever of position, rotation and layout are non-nil
// to the first entity with the given id.
func (s *Session) MoveEntity(id string, position, rotation *types.Vector, layout *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := s.room.EntitiesByID(id)
	if len(found) == 0 {
		return fmt.Errorf("%w: %q", ErrObjectNotFound, id)
	}
	obj := found[0]
	if position != nil {
		obj.Position = *position
	}
	if rotation != nil {
		obj.Rotation = *rotation
	}
	if layout != nil {
		obj.LayoutID = *layout
	}
	return nil
}

// Entity returns a copy of the entity with the given id.
func (s *Session) Entity(id string) (Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	found := s.room.EntitiesByID(id)
	if len(found) == 0 {
		return Object{}, false
	}
	return *found[0], true
}

func (s *Session) EntityCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.room.Entities)
}

func (s *Session) Info() types.SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return types.SessionInfo{
		ID:              s.ID,
		GameName:        s.GameID,
		State:           string(s.state),
		StartedAt:       s.StartedAt,
		PlayersCount:    len(s.players),
		MaxPlayersCount: len(s.room.Seats),
		GameMasterName:  s.Master.Name,
	}
}

// Snapshot is the full state as one player is allowed to see it.
func (s *Session) Snapshot(playerID uuid.UUID) (types.GameState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	viewer := s.playerLocked(playerID)
	if viewer == nil {
		return types.GameState{}, fmt.Errorf("%w: %s", ErrPlayerNotFound, playerID)
	}

	state := types.GameState{
		SessionID:       s.ID,
		PlayerID:        viewer.ID,
		Master:          s.Master.DTO(),
		Players:         make([]types.Player, 0, len(s.players)),
		Scene:           s.room.Scene(viewer),
		ClientResources: s.Objects.Resources(),
		PropertyBag:     maps.Clone(s.props),
	}
	if s.active != nil {
		id := s.active.ID
		state.ActivePlayerID = &id
	}
	for _, p := range s.players {
		state.Players = append(state.Players, p.DTO())
	}
	for _, d := range s.Objects.All() {
		state.Definitions = append(state.Definitions, d.DTO())
	}
	return state, nil
}
