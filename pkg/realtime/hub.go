package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"

	"github.com/medora/medora/pkg/apierr"
	"github.com/medora/medora/pkg/auth"
	"github.com/medora/medora/pkg/config"
	"github.com/medora/medora/pkg/httputil"
	"github.com/medora/medora/pkg/observability"
)

// sendBuffer is the number of frames queued per connection before new
// frames are dropped
const sendBuffer = 32

// Authenticator resolves the caller of a handshake. A nil context means
// the caller is anonymous.
type Authenticator interface {
	Resolve(ctx context.Context, header http.Header) (*auth.Context, error)
}

// Frame is what a client receives
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// envelope is what travels over the Redis channel
type envelope struct {
	Room  string          `json:"room"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Hub tracks websocket connections by room. Every connection joins the
// room of its account id and the room of its provider id. With a Redis
// client, broadcasts go through a pub/sub channel so every instance
// delivers them to its own connections.
type Hub struct {
	cfg      config.RealtimeConfig
	authn    Authenticator
	redis    *redis.Client
	metrics  *observability.Metrics
	logger   *observability.Logger
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	rooms map[string]map[*client]struct{}
}

// NewHub creates a hub. redisClient and metrics may be nil; without Redis
// broadcasts only reach connections of this instance.
func NewHub(cfg config.RealtimeConfig, authn Authenticator, redisClient *redis.Client, metrics *observability.Metrics, logger *observability.Logger) *Hub {
	h := &Hub{
		cfg:     cfg,
		authn:   authn,
		redis:   redisClient,
		metrics: metrics,
		logger:  logger.WithField("component", "realtime"),
		rooms:   make(map[string]map[*client]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// Broadcast sends event with payload to every connection in room
func (h *Hub) Broadcast(ctx context.Context, room, event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", event, err)
	}

	if h.metrics != nil {
		h.metrics.RealtimeEventsTotal.WithLabelValues(event).Inc()
	}

	env := envelope{Room: room, Event: event, Data: data}
	if h.redis == nil {
		h.deliver(env)
		return nil
	}

	msg, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}
	if err := h.redis.Publish(ctx, h.cfg.Channel, msg).Err(); err != nil {
		return fmt.Errorf("failed to publish %s: %w", event, err)
	}
	return nil
}

// Run relays broadcasts from the Redis channel to local connections until
// ctx is cancelled. It returns at once when the hub has no Redis client.
func (h *Hub) Run(ctx context.Context) error {
	if h.redis == nil {
		return nil
	}

	pubsub := h.redis.Subscribe(ctx, h.cfg.Channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to subscribe to %s: %w", h.cfg.Channel, err)
	}
	h.logger.WithField("channel", h.cfg.Channel).Info("Realtime relay subscribed")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				h.logger.WithError(err).Warn("Dropping malformed realtime message")
				continue
			}
			h.deliver(env)
		}
	}
}

// deliver queues env on every local connection of its room. A connection
// whose queue is full misses the frame.
func (h *Hub) deliver(env envelope) {
	frame, err := json.Marshal(Frame{Event: env.Event, Data: env.Data})
	if err != nil {
		h.logger.WithError(err).Error("Failed to encode realtime frame")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[env.Room] {
		select {
		case c.send <- frame:
		default:
			h.logger.WithField("room", env.Room).Warn("Dropping frame for slow connection")
		}
	}
}

// ServeHTTP authenticates the handshake and upgrades the connection. The
// caller comes from the request context when the resolver middleware ran,
// otherwise from the Authorization header or a token query parameter.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	authCtx, err := h.handshakeCaller(r)
	if err != nil {
		httputil.WriteErr(w, r, err)
		return
	}
	if authCtx == nil {
		httputil.WriteErr(w, r, apierr.ErrUnauthenticated)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already replied
		observability.FromContext(r.Context()).WithError(err).Debug("Websocket upgrade failed")
		return
	}

	c := newClient(h, conn, roomsFor(authCtx))
	h.register(c)
	go c.writePump()
	c.readPump()
}

func (h *Hub) handshakeCaller(r *http.Request) (*auth.Context, error) {
	if authCtx, ok := auth.FromContext(r.Context()); ok {
		return authCtx, nil
	}
	if h.authn == nil {
		return nil, nil
	}

	header := r.Header
	if token := r.URL.Query().Get("token"); token != "" && header.Get("Authorization") == "" {
		header = header.Clone()
		header.Set("Authorization", "Bearer "+token)
	}
	return h.authn.Resolve(r.Context(), header)
}

func roomsFor(authCtx *auth.Context) []string {
	user := authCtx.AccountID.String()
	provider := authCtx.ProviderID.String()
	if user == provider {
		return []string{user}
	}
	return []string{user, provider}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	for _, room := range c.rooms {
		members, ok := h.rooms[room]
		if !ok {
			members = make(map[*client]struct{})
			h.rooms[room] = members
		}
		members[c] = struct{}{}
	}
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.RealtimeConnections.Inc()
	}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	for _, room := range c.rooms {
		if members, ok := h.rooms[room]; ok {
			delete(members, c)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.RealtimeConnections.Dec()
	}
}

// RoomSize returns the number of local connections in room
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}
