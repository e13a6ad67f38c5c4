package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/contactcopilof/APPLI-VIDEO/internal/keygate"
)

type HealthHandler struct {
	gate  *keygate.Gate
	redis *redis.Client
}

func NewHealthHandler(gate *keygate.Gate, redisClient *redis.Client) *HealthHandler {
	return &HealthHandler{gate: gate, redis: redisClient}
}

// Check handles GET /health
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	redisOK := h.redis != nil && h.redis.Ping(ctx).Err() == nil
	status := "ok"
	if !redisOK {
		status = "degraded"
	}

	return c.JSON(fiber.Map{
		"status": status,
		"services": fiber.Map{
			"gemini": h.gate.Present(),
			"redis":  redisOK,
		},
	})
}
