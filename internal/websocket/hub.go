package websocket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/raeesrind/GT-MCQS-Creator/internal/middleware"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub fans Redis device_updates messages out to the browser tabs of each
// device. Extraction progress and test-generation completion arrive here.
type Hub struct {
	mu          sync.RWMutex
	connections map[uuid.UUID][]*websocket.Conn
	redisClient *redis.Client
	auth        *middleware.DeviceAuth
	cancelFuncs map[uuid.UUID]context.CancelFunc
}

func NewHub(redisClient *redis.Client, auth *middleware.DeviceAuth) *Hub {
	return &Hub{
		connections: make(map[uuid.UUID][]*websocket.Conn),
		redisClient: redisClient,
		auth:        auth,
		cancelFuncs: make(map[uuid.UUID]context.CancelFunc),
	}
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Browsers cannot set headers on WS requests, so the device token rides
	// in a query param.
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	deviceID, err := h.auth.ParseToken(tokenStr)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	h.registerConnection(deviceID, conn)

	// Keep connection alive and handle disconnect
	go func() {
		defer h.unregisterConnection(deviceID, conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (h *Hub) registerConnection(deviceID uuid.UUID, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.connections[deviceID] = append(h.connections[deviceID], conn)

	// First connection for this device starts its pub/sub subscription
	if len(h.connections[deviceID]) == 1 {
		ctx, cancel := context.WithCancel(context.Background())
		h.cancelFuncs[deviceID] = cancel
		go h.subscribeToPubSub(ctx, deviceID)
	}

	log.Printf("WebSocket connected: device %s (total: %d)", deviceID, len(h.connections[deviceID]))
}

func (h *Hub) unregisterConnection(deviceID uuid.UUID, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn.Close()

	conns := h.connections[deviceID]
	for i, c := range conns {
		if c == conn {
			h.connections[deviceID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}

	// Last connection gone, cancel pub/sub
	if len(h.connections[deviceID]) == 0 {
		delete(h.connections, deviceID)
		if cancel, ok := h.cancelFuncs[deviceID]; ok {
			cancel()
			delete(h.cancelFuncs, deviceID)
		}
	}

	log.Printf("WebSocket disconnected: device %s", deviceID)
}

func (h *Hub) subscribeToPubSub(ctx context.Context, deviceID uuid.UUID) {
	channel := "device_updates:" + deviceID.String()
	pubsub := h.redisClient.Subscribe(ctx, channel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.broadcast(deviceID, []byte(msg.Payload))
		}
	}
}

func (h *Hub) broadcast(deviceID uuid.UUID, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, conn := range h.connections[deviceID] {
		conn.WriteMessage(websocket.TextMessage, data)
	}
}

// SendToDevice sends a message directly, bypassing pub/sub.
func (h *Hub) SendToDevice(deviceID uuid.UUID, msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.broadcast(deviceID, data)
}
