package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/MediaDash/internal/pkg/s3upload"
)

// UploadController hands out presigned S3 URLs so media sources can be
// uploaded directly and passed to media jobs.
type UploadController struct {
	presigner s3upload.Presigner
}

// NewUploadController creates an upload controller. presigner may be nil when
// S3 is not configured.
func NewUploadController(presigner s3upload.Presigner) *UploadController {
	return &UploadController{presigner: presigner}
}

type presignRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
}

// HandlePresign returns a presigned PUT URL plus the public GET URL.
func (uc *UploadController) HandlePresign(c *fiber.Ctx) error {
	caller, ok := requireCaller(c)
	if !ok {
		return nil
	}
	if uc.presigner == nil {
		return errorJSON(c, fiber.StatusServiceUnavailable, "uploads_unavailable", "Uploads are not configured")
	}
	var req presignRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Request body must be valid JSON")
	}

	upload, err := uc.presigner.PresignUpload(c.UserContext(), caller.WorkspaceID, req.Filename, req.ContentType)
	if err != nil {
		switch {
		case errors.Is(err, s3upload.ErrInvalidFilename):
			return badRequest(c, "filename is required")
		case errors.Is(err, s3upload.ErrUnsupportedType):
			return badRequest(c, "content_type must be a video, audio, image or subtitle type")
		default:
			log.Errorf("[Upload] presign for workspace %s failed: %v", caller.WorkspaceID, err)
			return internalError(c, "Failed to prepare upload")
		}
	}
	return c.JSON(upload)
}
