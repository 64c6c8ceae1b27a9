package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub() *Hub {
	return &Hub{
		sidRoom:    make(map[string]string),
		roomCount:  make(map[string]int),
		sidSession: make(map[string]string),
		sidRooms:   make(map[string]map[string]struct{}),
		broadcast:  make(chan Message, 8),
	}
}

func TestNormalizeSessionID(t *testing.T) {
	assert.Equal(t, "abc", normalizeSessionID(" abc ", "sid-1"))
	assert.Equal(t, "sid-1", normalizeSessionID("", "sid-1"))
	assert.Equal(t, "sid-1", normalizeSessionID("   ", "sid-1"))
	assert.Equal(t, "", normalizeSessionID("", ""))
}

func TestJoinAndLeavePublicRoom(t *testing.T) {
	h := newTestHub()

	assert.False(t, h.leavePublicRoom("s1", "lobby"), "leaving before joining should report no membership")

	h.joinPublicRoom("s1", "lobby")
	h.joinPublicRoom("s1", "lobby")
	h.joinPublicRoom("s1", "chapter-3")

	assert.True(t, h.leavePublicRoom("s1", "lobby"))
	assert.False(t, h.leavePublicRoom("s1", "lobby"), "second leave of the same room should report no membership")

	assert.True(t, h.leavePublicRoom("s1", "chapter-3"))
	_, tracked := h.sidRooms["s1"]
	assert.False(t, tracked, "socket entry should be dropped once its last room is left")
}

func TestJoinedPublicRoomsOfSIDSorted(t *testing.T) {
	h := newTestHub()

	assert.Nil(t, h.joinedPublicRoomsOfSID("unknown"))

	h.joinPublicRoom("s1", "zeta")
	h.joinPublicRoom("s1", "alpha")
	h.joinPublicRoom("s1", "midway")

	assert.Equal(t, []string{"alpha", "midway", "zeta"}, h.joinedPublicRoomsOfSID("s1"))
}

func TestIdentityOfSID(t *testing.T) {
	h := newTestHub()
	h.sidSession["s1"] = "session-9"

	assert.Equal(t, "session-9", h.identityOfSID("s1", "fallback"))
	assert.Equal(t, "fallback", h.identityOfSID("s2", "fallback"))
	assert.Equal(t, "s3", h.identityOfSID("s3", ""))
}

func TestUpdateClientSession(t *testing.T) {
	h := newTestHub()
	h.roomCount[RoomPublic] = 3

	effective, changed, online := h.updateClientSession("s1", " session-7 ")
	assert.Equal(t, "session-7", effective)
	assert.True(t, changed)
	assert.Equal(t, 3, online)

	effective, changed, _ = h.updateClientSession("s1", "session-7")
	assert.Equal(t, "session-7", effective)
	assert.False(t, changed, "re-sending the current session id should not count as a change")

	effective, changed, _ = h.updateClientSession("s1", "   ")
	assert.Equal(t, "session-7", effective, "blank updates keep the stored session id")
	assert.False(t, changed)
}

func TestRegisterClientBookkeeping(t *testing.T) {
	h := newTestHub()

	h.registerClient(clientMeta{sid: "a1", room: RoomAdmin})
	h.registerClient(clientMeta{sid: "a1", room: RoomAdmin})

	assert.Equal(t, 1, h.ClientCount(RoomAdmin), "re-registering the same socket should not inflate the count")
	assert.Equal(t, 1, h.ClientCount(""))
	assert.Equal(t, 0, h.ClientCount(RoomPublic))
}

func TestUnregisterClientCleansPresenceState(t *testing.T) {
	h := newTestHub()
	h.sidRoom["w1"] = RoomPublic
	h.roomCount[RoomPublic] = 2
	h.sidSession["w1"] = "session-1"
	h.joinPublicRoom("w1", "lobby")

	h.unregisterClient(clientMeta{sid: "w1", room: RoomPublic, sessionID: "session-1"})

	assert.Equal(t, 1, h.ClientCount(RoomPublic))
	_, hasSession := h.sidSession["w1"]
	assert.False(t, hasSession)
	_, hasRooms := h.sidRooms["w1"]
	assert.False(t, hasRooms)

	select {
	case msg := <-h.broadcast:
		assert.Equal(t, eventVisitorOffline, msg.Event)
		assert.Equal(t, RoomPublic, msg.Room)
		payload, ok := msg.Payload.(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, 1, payload["online"])
		assert.Equal(t, "session-1", payload["sessionId"])
	default:
		t.Fatal("expected a visitor offline broadcast")
	}

	// Unknown sockets are ignored.
	h.unregisterClient(clientMeta{sid: "ghost", room: RoomPublic})
	assert.Equal(t, 1, h.ClientCount(RoomPublic))
}

func TestParseClientFrame(t *testing.T) {
	msg, ok := parseClientFrame(`{"type":"join","payload":{"roomName":"lobby"}}`)
	require.True(t, ok)
	assert.Equal(t, "join", msg.Type)
	assert.Equal(t, "lobby", strFromAny(msg.Payload["roomName"]))

	msg, ok = parseClientFrame(map[string]interface{}{
		"type":    "updateSid",
		"payload": map[string]interface{}{"sessionId": "session-2"},
	})
	require.True(t, ok)
	assert.Equal(t, "updateSid", msg.Type)
	assert.Equal(t, "session-2", strFromAny(msg.Payload["sessionId"]))

	_, ok = parseClientFrame("not json")
	assert.False(t, ok)

	_, ok = parseClientFrame()
	assert.False(t, ok)
}

func TestVisitorEventPayload(t *testing.T) {
	payload := newVisitorEventPayload(4, "")
	assert.Equal(t, 4, payload["online"])
	_, hasSession := payload["sessionId"]
	assert.False(t, hasSession, "empty session ids are omitted from the payload")

	payload = newVisitorEventPayload(2, "session-3")
	assert.Equal(t, "session-3", payload["sessionId"])
	assert.NotEmpty(t, payload["timestamp"])
}
