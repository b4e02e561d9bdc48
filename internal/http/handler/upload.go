package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"apkrelay/internal/artifact"
	"apkrelay/internal/service"
)

// UploadByURLRequest hands off an artifact that already sits at a public URL,
// typically after a signed direct upload.
type UploadByURLRequest struct {
	URL      string `json:"url"`
	FileName string `json:"fileName"`
	Size     int64  `json:"size"`
	CustomID string `json:"customId"`
}

// UploadArtifact godoc
// @Summary Start an APK handoff
// @Description Accepts multipart field "file" (or "apk"), or a JSON body with a URL.
// @Description Returns the pending record; poll /history/{id} for the outcome.
// @Tags upload
// @Accept multipart/form-data
// @Accept json
// @Produce json
// @Param file formData file false "APK file"
// @Param customId formData string false "identifier forwarded to the provider"
// @Param body body UploadByURLRequest false "URL reference"
// @Success 202 {object} model.UploadRecord
// @Failure 400 {object} errorPayload
// @Failure 500 {object} errorPayload
// @Router /upload [post]
func UploadArtifact(svc service.HandoffService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if strings.HasPrefix(string(c.Request().Header.ContentType()), fiber.MIMEMultipartForm) {
			return uploadMultipart(c, svc)
		}
		return uploadByURL(c, svc)
	}
}

func uploadMultipart(c *fiber.Ctx, svc service.HandoffService) error {
	fh, err := c.FormFile("file")
	if err != nil {
		fh, err = c.FormFile("apk")
	}
	if err != nil {
		return writeError(c, fiber.StatusBadRequest, "FILE_REQUIRED", "file is required")
	}

	f, err := fh.Open()
	if err != nil {
		return writeError(c, fiber.StatusBadRequest, "FILE_OPEN_ERROR", "cannot open uploaded file")
	}
	defer f.Close()

	ct := fh.Header.Get("Content-Type")
	if ct == "" {
		ct = "application/octet-stream"
	}
	customID := c.FormValue("customId")
	if customID == "" {
		customID = c.FormValue("custom_id")
	}

	rec, err := svc.UploadFile(c.UserContext(), f, service.Metadata{
		FileName:    fh.Filename,
		Size:        fh.Size,
		ContentType: ct,
		CustomID:    customID,
	})
	if err != nil {
		return writeAppError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(rec)
}

func uploadByURL(c *fiber.Ctx, svc service.HandoffService) error {
	var req UploadByURLRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "body must be multipart/form-data or JSON")
	}
	if req.URL == "" {
		return writeError(c, fiber.StatusBadRequest, "FILE_REQUIRED", "file or url is required")
	}

	ref, err := artifact.ParseLocation(req.URL)
	if err != nil || ref.IsStored() {
		return writeError(c, fiber.StatusBadRequest, "INVALID_URL", "url must be an absolute http(s) url")
	}

	rec, err := svc.Handoff(c.UserContext(), ref, service.Metadata{
		FileName: req.FileName,
		Size:     req.Size,
		CustomID: req.CustomID,
	})
	if err != nil {
		return writeAppError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(rec)
}
