package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/DoyleJ11/tabletop-server/internal/catalog"
	"github.com/DoyleJ11/tabletop-server/internal/game"
	"github.com/DoyleJ11/tabletop-server/internal/hub"
	"github.com/DoyleJ11/tabletop-server/internal/session"
	"github.com/DoyleJ11/tabletop-server/pkg/types"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const maxBody = 64 << 10

type startRequest struct {
	Game   string `json:"game"`
	Master string `json:"master"`
}

type joinRequest struct {
	Name string `json:"name"`
}

type joinResponse struct {
	Player           types.Player `json:"player"`
	MessageServerURI string       `json:"messageServerUri"`
}

// MessageServerURI is the websocket address a player connects to.
func MessageServerURI(sessionID, playerID uuid.UUID) string {
	return fmt.Sprintf("/ws?session=%s&player=%s", sessionID, playerID)
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func ListGames(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		games, err := h.Catalog().List()
		if err != nil {
			writeError(w, err)
			return
		}
		if games == nil {
			games = []types.GameInfo{}
		}
		writeJSON(w, http.StatusOK, games)
	}
}

func StartSession(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req startRequest
		if !readJSON(w, r, &req) {
			return
		}
		req.Game = strings.TrimSpace(req.Game)
		req.Master = strings.TrimSpace(req.Master)
		if req.Game == "" || req.Master == "" {
			http.Error(w, "game and master are required", http.StatusBadRequest)
			return
		}

		rt, err := h.StartSession(r.Context(), req.Game, req.Master)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, rt.Session.Info())
	}
}

func ListSessions(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		live, err := h.List()
		if err != nil {
			writeError(w, err)
			return
		}
		out := make([]types.SessionInfo, 0, len(live))
		for _, rt := range live {
			out = append(out, rt.Session.Info())
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func SessionHistory(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recs, err := h.Store().ListSessions(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, recs)
	}
}

func GetSession(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rt, ok := lookup(w, r, h)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, rt.Session.Info())
	}
}

func TerminateSession(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			http.Error(w, "invalid session id", http.StatusBadRequest)
			return
		}
		if err := h.Terminate(id); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func JoinSession(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rt, ok := lookup(w, r, h)
		if !ok {
			return
		}
		var req joinRequest
		if !readJSON(w, r, &req) {
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			http.Error(w, "name is required", http.StatusBadRequest)
			return
		}

		p := game.NewPlayer(req.Name)
		if err := rt.Session.AddPlayer(p); err != nil {
			writeError(w, err)
			return
		}
		dto, err := rt.Session.SetPlayerActive(p.ID, false) // active once the socket is ready
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, joinResponse{
			Player:           dto,
			MessageServerURI: MessageServerURI(rt.Session.ID, p.ID),
		})
	}
}

func SessionState(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rt, ok := lookup(w, r, h)
		if !ok {
			return
		}
		playerID, err := uuid.Parse(r.URL.Query().Get("player"))
		if err != nil {
			http.Error(w, "missing or invalid player", http.StatusBadRequest)
			return
		}
		state, err := rt.Session.Snapshot(playerID)
		if err != nil {
			writeError(w, err)
			return
		}
		state.MessageServerURI = MessageServerURI(rt.Session.ID, playerID)
		writeJSON(w, http.StatusOK, state)
	}
}

func ScriptErrors(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			http.Error(w, "invalid session id", http.StatusBadRequest)
			return
		}
		errs, err := h.Store().ListScriptErrors(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, errs)
	}
}

func lookup(w http.ResponseWriter, r *http.Request, h *hub.Hub) (*session.Runtime, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return nil, false
	}
	rt, err := h.Get(id)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return rt, true
}

func readJSON(w http.ResponseWriter, r *http.Request, target any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, hub.ErrSessionNotFound),
		errors.Is(err, catalog.ErrPackageNotFound),
		errors.Is(err, game.ErrPlayerNotFound):
		return http.StatusNotFound
	case errors.Is(err, game.ErrSeatUnavailable), errors.Is(err, game.ErrPlayerExists):
		return http.StatusConflict
	case errors.Is(err, catalog.ErrPackageInvalid):
		return http.StatusUnprocessableEntity
	case errors.Is(err, hub.ErrHubClosed), errors.Is(err, session.ErrSessionEnded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = http.StatusText(status)
	}
	writeJSON(w, status, struct {
		Error string `json:"error"`
	}{Error: msg})
}
