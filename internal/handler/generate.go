package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/contactcopilof/APPLI-VIDEO/internal/model"
	"github.com/contactcopilof/APPLI-VIDEO/internal/service"
	"github.com/contactcopilof/APPLI-VIDEO/internal/workflow"
	"github.com/contactcopilof/APPLI-VIDEO/pkg/response"
)

type GenerateHandler struct {
	service   *service.StudioService
	validator *validator.Validate
}

func NewGenerateHandler(svc *service.StudioService, v *validator.Validate) *GenerateHandler {
	return &GenerateHandler{
		service:   svc,
		validator: v,
	}
}

// Start handles POST /api/generate
func (h *GenerateHandler) Start(c *fiber.Ctx) error {
	var req model.GenerateRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return response.ValidationError(c, "Invalid request body", nil)
		}
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.StartGeneration(c.Context(), req.Prompt)
	if err != nil {
		switch {
		case errors.Is(err, workflow.ErrBusy):
			return response.Conflict(c, err.Error())
		case errors.Is(err, workflow.ErrAssetsMissing):
			return response.ValidationError(c, err.Error(), nil)
		case errors.Is(err, workflow.ErrKeyRequired):
			return response.KeyRequired(c, err.Error())
		}
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, result)
}

// Status handles GET /api/generate/status
func (h *GenerateHandler) Status(c *fiber.Ctx) error {
	return response.OK(c, h.service.Status())
}

// JobStatus handles GET /api/generate/status/:jobId
func (h *GenerateHandler) JobStatus(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	job, err := h.service.JobStatus(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, job)
}

// GetPrompt handles GET /api/prompt
func (h *GenerateHandler) GetPrompt(c *fiber.Ctx) error {
	return response.OK(c, model.PromptResponse{Prompt: h.service.Prompt()})
}

// SetPrompt handles PUT /api/prompt
func (h *GenerateHandler) SetPrompt(c *fiber.Ctx) error {
	var req model.PromptRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	h.service.SetPrompt(req.Prompt)
	return response.OK(c, model.PromptResponse{Prompt: req.Prompt})
}
