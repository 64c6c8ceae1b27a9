package gateway

import (
	"sync"

	pkgredis "github.com/neperienx/bookpipeline/internal/pkg/redis"
	socketio "github.com/zishang520/socket.io/v2/socket"
	"go.uber.org/zap"
)

const (
	RoomAdmin       = "admin"
	RoomPublic      = "public"
	namespaceAdmin  = "/admin"
	namespaceWeb    = "/web"
	redisChanAdmin  = "bp:gateway:admin"
	redisChanPublic = "bp:gateway:public"

	redisKeyMaxOnlineCount      = "bp:max_online_count"
	redisKeyMaxOnlineCountTotal = "bp:max_online_count:total"

	nativeLogSnapshotChunkSize = 32 * 1024
)

// Generation lifecycle events pushed to connected editors while a
// long-running model call works through its attempts.
const (
	EventGenerationProgress = "GENERATION_PROGRESS"
	EventGenerationDone     = "GENERATION_DONE"
	EventGenerationFailed   = "GENERATION_FAILED"
)

// Message is the envelope used by hub broadcasts and Redis fan-out.
type Message struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
	Code    *int        `json:"code,omitempty"`
	Room    string      `json:"room,omitempty"`
}

type gatewayPayload struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
	Code *int        `json:"code,omitempty"`
}

type clientMeta struct {
	sid       string
	room      string
	sessionID string
}

type adminLogSubscription struct {
	streamID int
	stopCh   chan struct{}
}

// Hub manages socket.io namespaces and cluster fan-out.
type Hub struct {
	mu sync.RWMutex

	sidRoom    map[string]string
	roomCount  map[string]int
	sidSession map[string]string
	sidRooms   map[string]map[string]struct{}

	logSubMu sync.Mutex
	logSubs  map[string]adminLogSubscription

	broadcast  chan Message
	register   chan clientMeta
	unregister chan clientMeta

	rc                  *pkgredis.Client
	logger              *zap.Logger
	sio                 *socketio.Server
	adminTokenValidator func(string) bool
}
