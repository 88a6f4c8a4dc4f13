package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/shamandhungel-voodoo/SyncScholars-backend/internal/models"
	"github.com/shamandhungel-voodoo/SyncScholars-backend/internal/services"
	"github.com/shamandhungel-voodoo/SyncScholars-backend/internal/session"
	"github.com/shamandhungel-voodoo/SyncScholars-backend/internal/utils"
)

// wsSink adapts a fiber websocket connection to the session.Sink interface.
// The mutex covers the handshake window where both the read loop (welcome,
// pong, local errors) and the room actor may write.
type wsSink struct {
	id   string
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *wsSink) ID() string { return s.id }

func (s *wsSink) Send(event string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return utils.SendEvent(s.conn, event, payload)
}

// WebSocketHandler runs the per-connection event channel: welcome ack,
// then a read loop translating client frames into session actions.
func WebSocketHandler(groupService *services.GroupService) fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		userID := c.Locals("user_id").(string)
		username, _ := c.Locals("username").(string)

		connID := uuid.New().String()
		sink := &wsSink{id: connID, conn: c}

		var room *session.Room
		defer func() {
			if room != nil {
				room.Disconnect(connID)
			}
			c.Close()
		}()

		// Connection establishment immediately yields a welcome ack with
		// the connection identifier.
		if err := sink.Send(session.EventConnected, fiber.Map{
			"connection_id": connID,
			"message":       "Connected to SyncScholars",
		}); err != nil {
			return
		}

		for {
			msgType, raw, err := c.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Warn().Err(err).Str("conn", connID).Msg("websocket read error")
				}
				return
			}
			if msgType != websocket.TextMessage {
				continue
			}

			var msg models.WSMessage
			if err := utils.ParseJSON(raw, &msg); err != nil {
				sendLocalError(sink, "validation", "malformed frame")
				continue
			}

			switch msg.Event {
			case "ping":
				_ = sink.Send("pong", fiber.Map{"timestamp": time.Now().UnixMilli()})
			case "echo":
				_ = sink.Send("echo-response", fiber.Map{"original": msg.Data, "timestamp": time.Now().UnixMilli()})
			case session.ActionJoin:
				if msg.Group == "" {
					sendLocalError(sink, "validation", "group code required")
					continue
				}
				target, err := groupService.Session(context.Background(), msg.Group)
				if err != nil {
					sendLocalError(sink, session.ErrorCode(err), err.Error())
					continue
				}
				if room != nil && room != target {
					room.Disconnect(connID)
				}
				room = target
				room.Submit(session.Action{
					Msg:      msg,
					ConnID:   connID,
					UserID:   userID,
					Username: username,
					Sink:     sink,
				})
			case session.ActionLeave:
				if room == nil {
					continue
				}
				room.Submit(session.Action{Msg: msg, ConnID: connID, UserID: userID, Username: username, Sink: sink})
				room = nil
			case "":
				sendLocalError(sink, "validation", "event name required")
			default:
				if room == nil {
					sendLocalError(sink, "validation", "join a group first")
					continue
				}
				room.Submit(session.Action{
					Msg:      msg,
					ConnID:   connID,
					UserID:   userID,
					Username: username,
					Sink:     sink,
				})
			}
		}
	})
}

func sendLocalError(sink *wsSink, code, message string) {
	if err := sink.Send(session.EventError, session.ErrorEvent{Code: code, Message: message}); err != nil {
		log.Warn().Err(err).Str("conn", sink.ID()).Msg("failed to send error event")
	}
}

// WSUpgradeMiddleware rejects non-WebSocket requests on the /ws route.
func WSUpgradeMiddleware(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		c.Locals("allowed", true)
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// AuthMiddleware verifies the JWT before the request reaches a handler or
// the WebSocket upgrade.
func AuthMiddleware(c *fiber.Ctx) error {
	// Token comes from the access_token query param (browser WebSocket
	// clients cannot set headers) or the Authorization header.
	token := c.Query("access_token")
	if token == "" {
		authHeader := c.Get("Authorization")
		if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
			token = authHeader[7:]
		}
	}
	if token == "" {
		return fiber.NewError(fiber.StatusUnauthorized, "Missing token")
	}

	claims, err := services.ValidateToken(token)
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "Invalid token")
	}

	uid, ok := claims["user_id"].(string)
	if !ok || uid == "" {
		return fiber.NewError(fiber.StatusUnauthorized, "Invalid token claims")
	}
	c.Locals("user_id", uid)
	if u, ok := claims["username"].(string); ok {
		c.Locals("username", u)
	}

	return c.Next()
}
