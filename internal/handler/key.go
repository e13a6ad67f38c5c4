package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/contactcopilof/APPLI-VIDEO/internal/keygate"
	"github.com/contactcopilof/APPLI-VIDEO/internal/model"
	"github.com/contactcopilof/APPLI-VIDEO/pkg/response"
)

type KeyHandler struct {
	gate *keygate.Gate
}

func NewKeyHandler(gate *keygate.Gate) *KeyHandler {
	return &KeyHandler{gate: gate}
}

// Status handles GET /api/key
//
// Returns the cached presence. ?refresh=true asks the host again.
func (h *KeyHandler) Status(c *fiber.Ctx) error {
	has := h.gate.Present()
	if c.QueryBool("refresh") {
		has = h.gate.HasKey(c.Context())
	}
	return response.OK(c, model.KeyStatusResponse{HasKey: has})
}

// Select handles POST /api/key/select
func (h *KeyHandler) Select(c *fiber.Ctx) error {
	has, err := h.gate.RequestKey(c.Context())
	if err != nil {
		var selErr *keygate.KeySelectionError
		if errors.As(err, &selErr) {
			return response.KeySelectionFailed(c, err.Error())
		}
		return response.ServiceError(c, err.Error())
	}
	return response.OK(c, model.KeyStatusResponse{HasKey: has})
}
