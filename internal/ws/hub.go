package ws

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/zzjunior/whatsapp-checker-api/internal/auth"
	"github.com/zzjunior/whatsapp-checker-api/internal/domain"
	"github.com/zzjunior/whatsapp-checker-api/internal/instance"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The admin panel is served from arbitrary origins; auth happens after
	// the upgrade via the authenticate message.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type ownerFrame struct {
	owner domain.UserID
	frame []byte
}

// Hub fans lifecycle events out to authenticated admin-panel clients. Clients
// are grouped into per-owner rooms; an owner only ever sees their own
// instances.
type Hub struct {
	auth      *auth.Service
	registry  *instance.Registry
	instances domain.InstanceRepository

	register   chan *Client
	unregister chan *Client
	broadcast  chan ownerFrame

	rooms map[domain.UserID]map[*Client]bool
}

// NewHub creates the hub. Run must be started before serving connections.
func NewHub(authSvc *auth.Service, registry *instance.Registry, instances domain.InstanceRepository) *Hub {
	return &Hub{
		auth:       authSvc,
		registry:   registry,
		instances:  instances,
		register:   make(chan *Client),
		unregister: make(chan *Client, sendBuffer),
		broadcast:  make(chan ownerFrame, sendBuffer),
		rooms:      make(map[domain.UserID]map[*Client]bool),
	}
}

// Run owns the room map. Call it once, in its own goroutine.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for _, room := range h.rooms {
				for client := range room {
					client.shutdown()
				}
			}
			return

		case client := <-h.register:
			room := h.rooms[client.userID]
			if room == nil {
				room = make(map[*Client]bool)
				h.rooms[client.userID] = room
			}
			room[client] = true

		case client := <-h.unregister:
			if room, ok := h.rooms[client.userID]; ok {
				delete(room, client)
				if len(room) == 0 {
					delete(h.rooms, client.userID)
				}
			}
			client.shutdown()

		case of := <-h.broadcast:
			for client := range h.rooms[of.owner] {
				if !client.trySend(of.frame) {
					delete(h.rooms[of.owner], client)
					client.shutdown()
				}
			}
		}
	}
}

// ServeWS upgrades an HTTP request into a websocket client.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}

	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	go client.writePump()
	go client.readPump()
}

// NotifyInstance is the registry's status sink: it pushes lifecycle events to
// the owner's room. QR codes are excluded here; they go only to the client
// that requested pairing.
func (h *Hub) NotifyInstance(owner domain.UserID, evt instance.Event, status domain.Status) {
	h.broadcastToOwner(owner, "instance_status_changed", map[string]interface{}{
		"instance_id": evt.InstanceID,
		"status":      status,
	})

	switch evt.Type {
	case instance.EventConnected:
		h.broadcastToOwner(owner, "instance_connected", map[string]interface{}{
			"instance_id": evt.InstanceID,
		})
	case instance.EventDisconnected:
		h.broadcastToOwner(owner, "instance_disconnected", map[string]interface{}{
			"instance_id": evt.InstanceID,
		})
	case instance.EventMaxReconnect:
		h.broadcastToOwner(owner, "max_reconnect_attempts", map[string]interface{}{
			"instance_id": evt.InstanceID,
		})
	}
}

func (h *Hub) broadcastToOwner(owner domain.UserID, eventType string, data interface{}) {
	frame, err := encodeMessage(eventType, data)
	if err != nil {
		log.Error().Err(err).Str("type", eventType).Msg("Failed to encode broadcast")
		return
	}

	select {
	case h.broadcast <- ownerFrame{owner: owner, frame: frame}:
	default:
		log.Warn().Str("type", eventType).Msg("Broadcast queue full, event dropped")
	}
}

// dispatch routes one inbound client message.
func (h *Hub) dispatch(c *Client, msg Message) {
	switch msg.Type {
	case "authenticate":
		h.handleAuthenticate(c, msg.Data)
	case "request_qr":
		h.handleRequestQR(c, msg.Data)
	default:
		c.sendEvent("error", map[string]string{"message": "unknown message type: " + msg.Type})
	}
}

func (h *Hub) handleAuthenticate(c *Client, data json.RawMessage) {
	var payload struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(data, &payload); err != nil || payload.Token == "" {
		h.rejectAuth(c, "token is required")
		return
	}

	claims, err := h.auth.ValidateJWT(payload.Token)
	if err != nil {
		h.rejectAuth(c, "invalid or expired token")
		return
	}

	c.userID = claims.UserID
	c.authed = true
	h.register <- c

	c.sendEvent("authenticated", map[string]interface{}{
		"user_id":  claims.UserID,
		"username": claims.Username,
	})
	c.sendEvent("instances_status", h.snapshot(claims.UserID))

	log.Info().
		Int64("user_id", int64(claims.UserID)).
		Msg("Websocket client authenticated")
}

// rejectAuth reports the failure and terminates the connection. The failure
// frame is already buffered when the channel closes, so writePump delivers it
// before the close frame.
func (h *Hub) rejectAuth(c *Client, message string) {
	c.sendEvent("authentication_failed", map[string]string{"message": message})
	c.shutdown()
}

// snapshot builds the per-owner instance listing with live statuses.
func (h *Hub) snapshot(owner domain.UserID) []map[string]interface{} {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	instances, err := h.instances.GetByUser(ctx, owner)
	if err != nil {
		log.Error().Err(err).Int64("user_id", int64(owner)).Msg("Failed to load instance snapshot")
		return []map[string]interface{}{}
	}

	out := make([]map[string]interface{}, 0, len(instances))
	for _, inst := range instances {
		out = append(out, map[string]interface{}{
			"instance_id": inst.ID,
			"name":        inst.Name,
			"status":      h.registry.StatusOf(ctx, inst),
		})
	}
	return out
}

func (h *Hub) handleRequestQR(c *Client, data json.RawMessage) {
	if !c.authed {
		c.sendEvent("error", map[string]string{"message": "authentication required"})
		return
	}

	var payload struct {
		InstanceID domain.InstanceID `json:"instance_id"`
	}
	if err := json.Unmarshal(data, &payload); err != nil || payload.InstanceID <= 0 {
		c.sendEvent("error", map[string]string{"message": "instance_id is required"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// The pairing code goes only to this client, never to the whole room.
	relay := func(evt instance.Event) {
		if evt.Type != instance.EventQR {
			return
		}
		uri, err := qrDataURI(evt.QR)
		if err != nil {
			log.Error().Err(err).Str("instance_id", evt.InstanceID.String()).Msg("Failed to render QR code")
			return
		}
		c.sendEvent("qr_code", map[string]interface{}{
			"instance_id": evt.InstanceID,
			"qr":          uri,
		})
	}

	sub, err := h.registry.ConnectInstance(ctx, c.userID, payload.InstanceID, relay)
	if err != nil {
		c.sendEvent("error", map[string]string{"message": err.Error()})
		return
	}
	c.trackSubscription(sub)
}

// qrDataURI renders a pairing code as a PNG data URI for direct <img> use.
func qrDataURI(code string) (string, error) {
	png, err := qrcode.Encode(code, qrcode.Medium, 256)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
