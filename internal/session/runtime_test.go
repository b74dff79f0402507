package session

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DoyleJ11/tabletop-server/internal/engine"
	"github.com/DoyleJ11/tabletop-server/internal/game"
	"github.com/DoyleJ11/tabletop-server/internal/game/gametest"
	"github.com/DoyleJ11/tabletop-server/internal/protocol"
	"github.com/DoyleJ11/tabletop-server/internal/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testScript = `
on("deal", function(p)
	return {{ type = "message", message = "your card", to = { 2, 5 } }}
end)
on("secret", function(p)
	return {{ type = "property", key = "phase", value = "hidden", to = { 1 } }}
end)
on("spawn", function(p)
	return {{ type = "new_entity", name = "token", id = "t1", to = "*" }}
end)
on("boom", function(p)
	error("no such card")
end)
on("end", function(p)
	finish()
end)
`

// helper: receive one frame with a timeout so tests never hang
func recvFrame(t *testing.T, sub *Subscriber, within time.Duration) map[string]any {
	t.Helper()
	select {
	case frame, ok := <-sub.Outbox():
		if !ok {
			t.Fatalf("outbox closed unexpectedly (%s)", sub.Reason())
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal(frame, &m))
		return m
	case <-time.After(within):
		t.Fatalf("timed out waiting for frame")
		return nil
	}
}

func recvNoFrame(t *testing.T, sub *Subscriber, within time.Duration) {
	t.Helper()
	select {
	case frame, ok := <-sub.Outbox():
		if !ok {
			return
		}
		t.Fatalf("expected no frame within %v, got %s", within, frame)
	case <-time.After(within):
	}
}

func startRuntime(t *testing.T, s *game.Session, opts ...Option) *Runtime {
	t.Helper()
	r := New(s, engine.NewLua(), opts...)
	t.Cleanup(r.Close)
	require.NoError(t, r.Start(context.Background(), []byte(testScript)))
	return r
}

func TestStart_MarksSessionStarted(t *testing.T) {
	store := storage.NewMemory()
	s := gametest.NewSession(t, 2)
	startRuntime(t, s, WithStore(store))

	assert.Equal(t, game.StateStarted, s.State())
	rec, err := store.Session(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, "started", rec.State)
	assert.Equal(t, 2, rec.Seats)
}

func TestStart_FailsWhenScriptFinishesImmediately(t *testing.T) {
	s := gametest.NewSession(t, 2)
	r := New(s, engine.NewLua())
	defer r.Close()

	err := r.Start(context.Background(), []byte(`finish()`))
	require.Error(t, err)
	assert.Equal(t, game.StateCreated, s.State())
}

func TestProcessed_DeliversOnlyToAddressedSeats(t *testing.T) {
	s := gametest.NewSession(t, 6)
	two := gametest.Seat(t, s, "two", 2)
	three := gametest.Seat(t, s, "three", 3)
	r := startRuntime(t, s)

	subTwo, err := r.Subscribe(two.ID)
	require.NoError(t, err)
	subThree, err := r.Subscribe(three.ID)
	require.NoError(t, err)

	require.NoError(t, r.Enqueue(protocol.Custom{ID: "deal", SenderID: two.ID}))

	got := recvFrame(t, subTwo, time.Second)
	assert.Equal(t, protocol.TagMessage, got["tag"])
	assert.Equal(t, "your card", got["message"])
	recvNoFrame(t, subThree, 50*time.Millisecond)
}

func TestProcessed_NoOneMutatesWithoutDelivering(t *testing.T) {
	s := gametest.NewSession(t, 3)
	p := gametest.Seat(t, s, "a", 0)
	r := startRuntime(t, s)
	sub, err := r.Subscribe(p.ID)
	require.NoError(t, err)

	require.NoError(t, r.Enqueue(protocol.Custom{ID: "secret"}))

	require.Eventually(t, func() bool {
		v, ok := s.Property("phase")
		return ok && v == "hidden"
	}, time.Second, 5*time.Millisecond)
	recvNoFrame(t, sub, 50*time.Millisecond)
}

func TestProcessed_CommitsBeforeDelivery(t *testing.T) {
	s := gametest.NewSession(t, 2)
	p := gametest.Seat(t, s, "a", 0)
	r := startRuntime(t, s)
	sub, err := r.Subscribe(p.ID)
	require.NoError(t, err)

	require.NoError(t, r.Enqueue(protocol.Custom{ID: "spawn"}))

	got := recvFrame(t, sub, time.Second)
	assert.Equal(t, protocol.TagAddObjects, got["tag"])
	obj, ok := s.Entity("t1")
	require.True(t, ok, "entity must exist when the frame arrives")
	assert.Equal(t, "token", obj.Definition.Name)
}

func TestSubscribe_ReplacesOlderSubscription(t *testing.T) {
	s := gametest.NewSession(t, 2)
	p := gametest.Seat(t, s, "a", 0)
	r := startRuntime(t, s)

	first, err := r.Subscribe(p.ID)
	require.NoError(t, err)
	second, err := r.Subscribe(p.ID)
	require.NoError(t, err)

	_, open := <-first.Outbox()
	assert.False(t, open)
	assert.Equal(t, ReasonReplaced, first.Reason())

	assert.False(t, r.Unsubscribe(first), "stale subscription must not remove the new one")
	assert.True(t, r.Connected(p.ID))
	assert.True(t, r.Unsubscribe(second))
	assert.False(t, r.Connected(p.ID))
	assert.Equal(t, ReasonLeft, second.Reason())
}

func TestDeliver_DropsSlowSubscriber(t *testing.T) {
	s := gametest.NewSession(t, 2)
	p := gametest.Seat(t, s, "a", 0)
	r := startRuntime(t, s, WithOutboxSize(1))
	sub, err := r.Subscribe(p.ID)
	require.NoError(t, err)

	r.Broadcast(protocol.ClientDisconnected{SenderID: uuid.New()})
	r.Broadcast(protocol.ClientDisconnected{SenderID: uuid.New()})

	assert.False(t, r.Connected(p.ID))
	assert.Equal(t, ReasonSlow, sub.Reason())
	recvFrame(t, sub, time.Second)
	_, open := <-sub.Outbox()
	assert.False(t, open)
}

func TestSendTo(t *testing.T) {
	s := gametest.NewSession(t, 2)
	a := gametest.Seat(t, s, "a", 0)
	b := gametest.Seat(t, s, "b", 1)
	r := startRuntime(t, s)
	subA, err := r.Subscribe(a.ID)
	require.NoError(t, err)

	require.ErrorIs(t, r.SendTo(b.ID, protocol.RTCSignal{}), ErrNotConnected)

	require.NoError(t, r.SendTo(a.ID, protocol.RTCSignal{SenderID: b.ID, Type: "offer", TargetID: a.ID}))
	got := recvFrame(t, subA, time.Second)
	assert.Equal(t, protocol.TagRTC, got["tag"])
	assert.Equal(t, b.ID.String(), got["senderId"])
}

func TestScriptError_IsRecorded(t *testing.T) {
	store := storage.NewMemory()
	s := gametest.NewSession(t, 2)
	r := startRuntime(t, s, WithStore(store))

	require.NoError(t, r.Enqueue(protocol.Custom{ID: "boom"}))

	var errs []storage.ScriptError
	require.Eventually(t, func() bool {
		errs, _ = store.ListScriptErrors(context.Background(), s.ID)
		return len(errs) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "boom", errs[0].Event)
	assert.Contains(t, errs[0].Message, "no such card")
}

func TestFinish_EndsSession(t *testing.T) {
	store := storage.NewMemory()
	s := gametest.NewSession(t, 2)
	p := gametest.Seat(t, s, "a", 0)
	r := startRuntime(t, s, WithStore(store))
	sub, err := r.Subscribe(p.ID)
	require.NoError(t, err)

	require.NoError(t, r.Enqueue(protocol.Custom{ID: "end"}))

	select {
	case <-r.Done():
	case <-time.After(time.Second):
		t.Fatal("runtime did not end after finish")
	}
	assert.Equal(t, game.StateEnded, s.State())
	assert.Equal(t, ReasonEnded, sub.Reason())

	rec, err := store.Session(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, "ended", rec.State)
	assert.NotNil(t, rec.EndedAt)

	_, err = r.Subscribe(p.ID)
	require.ErrorIs(t, err, ErrSessionEnded)
}
