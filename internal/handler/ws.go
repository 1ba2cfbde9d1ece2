package handler

import (
	"fmt"

	"github.com/FIJTeam/eternitycogs/internal/service"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// WSHandler upgrades ops connections onto the verification event feed.
type WSHandler struct {
	hub       *service.EventHub
	jwtSecret string
}

func NewWSHandler(hub *service.EventHub, jwtSecret string) *WSHandler {
	return &WSHandler{hub: hub, jwtSecret: jwtSecret}
}

// Upgrade validates the ticket and hands the connection to the hub.
func (h *WSHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	subject, err := h.validateTicket(c.Query("ticket"))
	if err != nil {
		return c.Status(401).JSON(fiber.Map{"error": "invalid or expired ticket"})
	}
	c.Locals("subject", subject)

	return websocket.New(h.serve)(c)
}

func (h *WSHandler) serve(conn *websocket.Conn) {
	subject, _ := conn.Locals("subject").(string)
	client := &service.WSClient{
		Conn:    conn,
		Subject: subject,
		Send:    make(chan []byte, 64),
	}
	h.hub.Register(client)
	defer h.hub.Unregister(client)

	// Writer: drains the send channel until the hub closes it on unregister.
	go func() {
		for msg := range client.Send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}()

	// The feed is one-way; reading only detects disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *WSHandler) validateTicket(ticket string) (string, error) {
	if ticket == "" {
		return "", fmt.Errorf("missing ticket")
	}
	token, err := jwt.Parse(ticket, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(h.jwtSecret), nil
	})
	if err != nil || !token.Valid {
		return "", fmt.Errorf("invalid ticket: %w", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid claims")
	}
	subject, _ := claims["sub"].(string)
	if subject == "" {
		return "", fmt.Errorf("missing subject")
	}
	return subject, nil
}
