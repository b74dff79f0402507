package protocol

import (
	"encoding/json"
	"testing"

	"github.com/DoyleJ11/tabletop-server/internal/game"
	"github.com/DoyleJ11/tabletop-server/pkg/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const senderText = "726288bd-a6a0-41de-bbba-96fe63bab1c7"

func TestDecode_ClientReady(t *testing.T) {
	msg, err := Decode([]byte(`{"tag":"init_done","senderId":"` + senderText + `"}`))
	require.NoError(t, err)

	ready, ok := msg.(ClientReady)
	require.True(t, ok, "got %T", msg)
	assert.Equal(t, uuid.MustParse(senderText), ready.Sender())
	assert.Empty(t, ready.Payload())
}

func TestDecode_CustomPayloadDropsSender(t *testing.T) {
	msg, err := Decode([]byte(`{"tag":"oink","senderId":"` + senderText + `","foo":"bar","value":12345}`))
	require.NoError(t, err)

	custom, ok := msg.(Custom)
	require.True(t, ok, "got %T", msg)
	assert.Equal(t, "oink", custom.ID)
	assert.Equal(t, uuid.MustParse(senderText), custom.Sender())

	payload := custom.Payload()
	assert.NotContains(t, payload, "senderId")
	assert.Equal(t, "bar", payload["foo"])
	assert.Equal(t, float64(12345), payload["value"])

	payload["playerIdx"] = 3
	assert.NotContains(t, custom.Payload(), "playerIdx", "payload must be a copy")
}

func TestDecode_TrailingNulBytes(t *testing.T) {
	frame := append([]byte(`{"tag":"card"}`), 0, 0, 0)
	msg, err := Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, msg.Sender())
}

func TestDecode_Errors(t *testing.T) {
	cases := []struct {
		name  string
		frame string
	}{
		{name: "invalid json", frame: `{"tag":`},
		{name: "not an object", frame: `[1,2,3]`},
		{name: "null", frame: `null`},
		{name: "missing tag", frame: `{"senderId":"` + senderText + `"}`},
		{name: "empty tag", frame: `{"tag":""}`},
		{name: "numeric tag", frame: `{"tag":7}`},
		{name: "bad sender", frame: `{"tag":"card","senderId":"nope"}`},
		{name: "numeric sender", frame: `{"tag":"card","senderId":12}`},
		{name: "rtc bad target", frame: `{"tag":"rtc","targetId":"nope"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := Decode([]byte(tc.frame))
			require.ErrorIs(t, err, ErrProtocolDecode)
			assert.Nil(t, msg)
		})
	}
}

func TestEncode_UsesTagAndCamelCase(t *testing.T) {
	layout := "score_2"
	pos := types.Vector{X: 1, Y: 2, Z: 3}

	out, err := Encode(MoveObject{ObjectID: "gem1", TargetPosition: &pos, TargetLayoutID: &layout})
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"tag": "move_object",
		"objectId": "gem1",
		"targetPosition": [1, 2, 3],
		"targetRotation": null,
		"targetLayoutId": "score_2"
	}`, string(out))
}

func TestEncode_AddObjectsCarriesWireCopies(t *testing.T) {
	def := &game.Definition{Name: "token", Group: "resource"}
	obj, err := def.NewObject("t1")
	require.NoError(t, err)

	msg := NewAddObjects([]*game.Object{obj})
	assert.Same(t, obj, msg.Objects()[0])

	out, err := Encode(msg)
	require.NoError(t, err)

	var decoded struct {
		Tag           string         `json:"tag"`
		AddingObjects []types.Object `json:"addingObjects"`
	}
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, TagAddObjects, decoded.Tag)
	require.Len(t, decoded.AddingObjects, 1)
	assert.Equal(t, "t1", decoded.AddingObjects[0].ID)
	assert.Equal(t, "token", decoded.AddingObjects[0].Name)
	assert.Equal(t, types.Vector{}, decoded.AddingObjects[0].Position)
}

func TestEncode_ShowMessageDuration(t *testing.T) {
	ms := 1500
	out, err := Encode(ShowMessage{Message: "hi", Duration: &ms})
	require.NoError(t, err)
	assert.JSONEq(t, `{"tag":"text_message","message":"hi","duration":1500}`, string(out))
}

func TestRTCSignal_RoundTrip(t *testing.T) {
	in := RTCSignal{
		SenderID: uuid.New(),
		Type:     "offer",
		Data:     json.RawMessage(`{"sdp":"v=0"}`),
		TargetID: uuid.New(),
	}

	out, err := Encode(in)
	require.NoError(t, err)

	msg, err := Decode(out)
	require.NoError(t, err)
	back, ok := msg.(RTCSignal)
	require.True(t, ok, "got %T", msg)
	assert.Equal(t, in, back)
}

func TestWithSender(t *testing.T) {
	id := uuid.New()

	assert.Equal(t, id, WithSender(ClientReady{}, id).Sender())
	assert.Equal(t, id, WithSender(Custom{ID: "x"}, id).Sender())
	assert.Equal(t, id, WithSender(RTCSignal{}, id).Sender())
	assert.Equal(t, uuid.Nil, WithSender(TimeoutElapsed{Seconds: 2}, id).Sender())
}
