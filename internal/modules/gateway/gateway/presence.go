package gateway

import (
	"sort"
	"strings"
)

// Inbound message types understood by the /web namespace.
const (
	messageJoin      = "join"
	messageLeave     = "leave"
	messageUpdateSID = "updateSid"
)

// Presence events pushed to the /web namespace.
const (
	eventVisitorOnline         = "VISITOR_ONLINE"
	eventVisitorOffline        = "VISITOR_OFFLINE"
	eventActivityLeavePresence = "ACTIVITY_LEAVE_PRESENCE"
)

// normalizeSessionID trims a client-supplied session id and falls back
// to the given value when the result is empty.
func normalizeSessionID(raw, fallback string) string {
	if s := strings.TrimSpace(raw); s != "" {
		return s
	}
	return fallback
}

func (h *Hub) joinPublicRoom(sid, roomName string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rooms := h.sidRooms[sid]
	if rooms == nil {
		rooms = make(map[string]struct{})
		h.sidRooms[sid] = rooms
	}
	rooms[roomName] = struct{}{}
}

// leavePublicRoom reports whether the socket was actually a member, so
// callers only announce departures that correspond to a join.
func (h *Hub) leavePublicRoom(sid, roomName string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	rooms := h.sidRooms[sid]
	if rooms == nil {
		return false
	}
	if _, ok := rooms[roomName]; !ok {
		return false
	}
	delete(rooms, roomName)
	if len(rooms) == 0 {
		delete(h.sidRooms, sid)
	}
	return true
}

func (h *Hub) joinedPublicRoomsOfSID(sid string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rooms := h.sidRooms[sid]
	if len(rooms) == 0 {
		return nil
	}
	names := make([]string, 0, len(rooms))
	for name := range rooms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// identityOfSID resolves the identity used in presence payloads: the
// stored session id when the client reported one, otherwise the socket id.
func (h *Hub) identityOfSID(sid, fallbackSessionID string) string {
	h.mu.RLock()
	stored := h.sidSession[sid]
	h.mu.RUnlock()

	return normalizeSessionID(stored, normalizeSessionID(fallbackSessionID, sid))
}

// updateClientSession records a new session id for a socket and returns
// the effective id, whether it changed, and the current public room size.
func (h *Hub) updateClientSession(sid, next string) (string, bool, int) {
	next = strings.TrimSpace(next)

	h.mu.Lock()
	defer h.mu.Unlock()

	current := h.sidSession[sid]
	online := h.roomCount[RoomPublic]
	if next == "" || next == current {
		return current, false, online
	}
	h.sidSession[sid] = next
	return next, true, online
}
