package handler

import (
	"log"
	"time"

	"github.com/FIJTeam/eternitycogs/internal/repository"
	"github.com/FIJTeam/eternitycogs/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

type AdminHandler struct {
	linkRepo   *repository.LinkRepository
	playerRepo *repository.PlayerRepository
	hub        *service.EventHub
	jwtSecret  string
}

func NewAdminHandler(linkRepo *repository.LinkRepository, playerRepo *repository.PlayerRepository, hub *service.EventHub, jwtSecret string) *AdminHandler {
	return &AdminHandler{linkRepo: linkRepo, playerRepo: playerRepo, hub: hub, jwtSecret: jwtSecret}
}

func (h *AdminHandler) Stats(c *fiber.Ctx) error {
	verified, err := h.linkRepo.CountValidLinks(c.Context())
	if err != nil {
		log.Printf("[api] stats query failed: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to load stats"})
	}
	players, err := h.playerRepo.Count(c.Context())
	if err != nil {
		log.Printf("[api] stats query failed: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to load stats"})
	}

	return c.JSON(fiber.Map{
		"verified_accounts": verified,
		"known_players":     players,
		"feed_clients":      h.hub.ClientCount(),
	})
}

// WSTicket mints a short-lived token for the event feed. Browsers cannot set
// the admin key header on a websocket upgrade, so ops tooling trades the key
// for a ticket and passes it as a query parameter.
func (h *AdminHandler) WSTicket(c *fiber.Ctx) error {
	claims := jwt.MapClaims{
		"sub": "ops-feed",
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(1 * time.Minute).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(h.jwtSecret))
	if err != nil {
		log.Printf("[api] ws ticket signing failed: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to issue ticket"})
	}
	return c.JSON(fiber.Map{"ticket": signed})
}
