package handler

import (
	"log"
	"time"

	"github.com/FIJTeam/eternitycogs/internal/model"
	"github.com/FIJTeam/eternitycogs/internal/repository"
	"github.com/FIJTeam/eternitycogs/internal/service"
	"github.com/FIJTeam/eternitycogs/internal/verify"

	"github.com/gofiber/fiber/v2"
)

// ServerHandler serves the game server's side of the verification flow:
// issuing one-time tokens, pushing playtime and checking link state.
type ServerHandler struct {
	linkRepo   *repository.LinkRepository
	playerRepo *repository.PlayerRepository
	hub        *service.EventHub
}

func NewServerHandler(linkRepo *repository.LinkRepository, playerRepo *repository.PlayerRepository, hub *service.EventHub) *ServerHandler {
	return &ServerHandler{linkRepo: linkRepo, playerRepo: playerRepo, hub: hub}
}

// IssueToken is called when a player asks for a verification token in game.
func (h *ServerHandler) IssueToken(c *fiber.Ctx) error {
	var req model.IssueTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}

	ckey := verify.NormalizeCkey(req.Ckey)
	if ckey == "" {
		return c.Status(400).JSON(fiber.Map{"error": "ckey is required"})
	}

	token, expiresAt, err := h.linkRepo.IssueToken(c.Context(), ckey)
	if err != nil {
		log.Printf("[api] token issue failed for %s: %v", ckey, err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to issue token"})
	}

	h.hub.Broadcast(&model.WSEvent{
		Type: model.EventTokenIssued,
		Ckey: ckey,
		At:   time.Now().UTC(),
	})

	return c.JSON(model.IssueTokenResponse{Token: token, ExpiresAt: expiresAt})
}

// Playtime is called by the game server after each round with the player's
// accumulated living minutes.
func (h *ServerHandler) Playtime(c *fiber.Ctx) error {
	var req model.PlaytimeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}

	ckey := verify.NormalizeCkey(req.Ckey)
	if ckey == "" {
		return c.Status(400).JSON(fiber.Map{"error": "ckey is required"})
	}
	if req.LivingMinutes < 0 {
		return c.Status(400).JSON(fiber.Map{"error": "living_minutes must not be negative"})
	}

	if err := h.playerRepo.UpsertPlaytime(c.Context(), ckey, req.LivingMinutes); err != nil {
		log.Printf("[api] playtime update failed for %s: %v", ckey, err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to update playtime"})
	}

	return c.JSON(fiber.Map{"ok": true})
}

// LinkStatus reports whether a ckey currently has a valid Discord link.
func (h *ServerHandler) LinkStatus(c *fiber.Ctx) error {
	ckey := verify.NormalizeCkey(c.Params("ckey"))
	if ckey == "" {
		return c.Status(400).JSON(fiber.Map{"error": "ckey is required"})
	}

	link, err := h.linkRepo.FindValidLinkByCkey(c.Context(), ckey)
	if err != nil {
		log.Printf("[api] link status lookup failed for %s: %v", ckey, err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to look up link"})
	}

	status := model.LinkStatus{}
	if link != nil && link.DiscordID != nil {
		status.Linked = true
		status.DiscordID = *link.DiscordID
	}
	return c.JSON(status)
}
