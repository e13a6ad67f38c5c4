package handler

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/contactcopilof/APPLI-VIDEO/internal/asset"
	"github.com/contactcopilof/APPLI-VIDEO/internal/model"
	"github.com/contactcopilof/APPLI-VIDEO/internal/service"
	"github.com/contactcopilof/APPLI-VIDEO/pkg/response"
)

var allowedImageTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/jpg":  true,
	"image/webp": true,
}

type AssetHandler struct {
	service   *service.StudioService
	encoder   *asset.Encoder
	previews  *asset.Previews
	validator *validator.Validate
	maxSize   int64
}

func NewAssetHandler(svc *service.StudioService, encoder *asset.Encoder, previews *asset.Previews, v *validator.Validate, maxSize int64) *AssetHandler {
	return &AssetHandler{
		service:   svc,
		encoder:   encoder,
		previews:  previews,
		validator: v,
		maxSize:   maxSize,
	}
}

// Upload handles POST /api/assets/:role
//
// Accepts either a multipart "file" field or a JSON body {"dataUri": "..."}.
// The asset replaces whatever the slot held before.
func (h *AssetHandler) Upload(c *fiber.Ctx) error {
	role, err := model.ParseAssetRole(c.Params("role"))
	if err != nil {
		return response.ValidationError(c, "Invalid asset role", fiber.Map{
			"role":    c.Params("role"),
			"allowed": model.ValidAssetRoles,
		})
	}

	var encoded *model.EncodedAsset
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		var req model.AssetDataURIRequest
		if err := c.BodyParser(&req); err != nil {
			return response.ValidationError(c, "Invalid request body", nil)
		}
		if err := h.validator.Struct(&req); err != nil {
			return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
		}
		encoded, err = h.encoder.EncodeDataURI(c.Context(), req.Name, req.DataURI)
	} else {
		file, ferr := c.FormFile("file")
		if ferr != nil {
			return response.ValidationError(c, "File is required", nil)
		}
		if file.Size > h.maxSize {
			return response.ValidationError(c, "File size exceeds limit", fiber.Map{
				"maxSize":  h.maxSize,
				"fileSize": file.Size,
			})
		}
		encoded, err = h.encoder.Encode(c.Context(), asset.FromFileHeader(file))
	}
	if err != nil {
		var readErr *asset.ReadError
		if errors.As(err, &readErr) {
			return response.ValidationError(c, "Could not read file", fiber.Map{"reason": readErr.Err.Error()})
		}
		return response.ServiceError(c, err.Error())
	}

	if encoded.Size == 0 {
		h.previews.Release(encoded.PreviewID)
		return response.ValidationError(c, "File is empty", nil)
	}
	if encoded.Size > h.maxSize {
		h.previews.Release(encoded.PreviewID)
		return response.ValidationError(c, "File size exceeds limit", fiber.Map{
			"maxSize":  h.maxSize,
			"fileSize": encoded.Size,
		})
	}
	if !allowedImageTypes[encoded.MimeType] {
		h.previews.Release(encoded.PreviewID)
		return response.ValidationError(c, "Invalid file type. Supported: PNG, JPG, WEBP", fiber.Map{
			"contentType": encoded.MimeType,
		})
	}

	h.service.SetAsset(role, encoded)

	return response.Created(c, model.AssetUploadResponse{
		Role:       role,
		Name:       encoded.Name,
		MimeType:   encoded.MimeType,
		Size:       encoded.Size,
		PreviewURL: "/previews/" + encoded.PreviewID,
	})
}

// Clear handles DELETE /api/assets/:role
func (h *AssetHandler) Clear(c *fiber.Ctx) error {
	role, err := model.ParseAssetRole(c.Params("role"))
	if err != nil {
		return response.ValidationError(c, "Invalid asset role", nil)
	}

	h.service.ClearAsset(role)
	return response.NoContent(c)
}

// Preview handles GET /previews/:id
func (h *AssetHandler) Preview(c *fiber.Ctx) error {
	pv, ok := h.previews.Get(c.Params("id"))
	if !ok {
		return response.NotFound(c, "Preview not found")
	}

	c.Set(fiber.HeaderContentType, pv.MimeType)
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.Send(pv.Data)
}
