package handler

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"apkrelay/internal/service"
)

func validID(c *fiber.Ctx) (string, bool) {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return "", false
	}
	return id, true
}

// ListHistory godoc
// @Summary List upload history
// @Description Newest first. limit=0 returns every record.
// @Tags history
// @Produce json
// @Param limit query int false "page size" default(0)
// @Param offset query int false "records to skip" default(0)
// @Success 200 {object} service.HistoryListResult
// @Failure 400 {object} errorPayload
// @Failure 500 {object} errorPayload
// @Router /history [get]
func ListHistory(svc service.HistoryService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit, err := strconv.Atoi(c.Query("limit", "0"))
		if err != nil || limit < 0 {
			return writeError(c, fiber.StatusBadRequest, "INVALID_LIMIT", "invalid limit")
		}
		offset, err := strconv.Atoi(c.Query("offset", "0"))
		if err != nil || offset < 0 {
			return writeError(c, fiber.StatusBadRequest, "INVALID_OFFSET", "invalid offset")
		}

		res, err := svc.List(c.UserContext(), limit, offset)
		if err != nil {
			return writeAppError(c, err)
		}
		return c.JSON(res)
	}
}

// GetHistory godoc
// @Summary Get one upload record
// @Tags history
// @Produce json
// @Param id path string true "upload id (uuid)"
// @Success 200 {object} model.UploadRecord
// @Failure 400 {object} errorPayload
// @Failure 404 {object} errorPayload
// @Router /history/{id} [get]
func GetHistory(svc service.HistoryService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := validID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		rec, err := svc.Get(c.UserContext(), id)
		if err != nil {
			return writeAppError(c, err)
		}
		return c.JSON(rec)
	}
}

// DeleteHistory godoc
// @Summary Delete an upload record
// @Description Removes the record and, once its handoff has finished, the staged artifact.
// @Tags history
// @Param id path string true "upload id (uuid)"
// @Success 204
// @Failure 400 {object} errorPayload
// @Failure 404 {object} errorPayload
// @Router /history/{id} [delete]
func DeleteHistory(svc service.HistoryService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := validID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		if err := svc.Delete(c.UserContext(), id); err != nil {
			return writeAppError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
