package handler

import (
	"github.com/gofiber/fiber/v2"

	"apkrelay/internal/signer"
)

// CredentialSigner issues direct-upload credentials.
type CredentialSigner interface {
	Sign(params map[string]string) (*signer.Credential, error)
}

// SignRequest lists the optional parameters a client may ask to have signed.
// Any other string fields in the body are signed as-is.
type SignRequest struct {
	PublicID string `json:"public_id"`
	Folder   string `json:"folder"`
}

// SignUpload godoc
// @Summary Sign a direct upload
// @Description Returns a Cloudinary signature over the given parameters and a server-chosen timestamp.
// @Tags upload
// @Accept json
// @Produce json
// @Param body body SignRequest false "parameters to sign"
// @Success 200 {object} signer.Credential
// @Failure 400 {object} errorPayload
// @Failure 500 {object} errorPayload
// @Router /sign [post]
func SignUpload(s CredentialSigner) fiber.Handler {
	return func(c *fiber.Ctx) error {
		params := map[string]string{}
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&params); err != nil {
				return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "body must be a JSON object of string values")
			}
		}
		if v, ok := params["publicId"]; ok {
			if _, set := params[signer.ParamPublicID]; !set {
				params[signer.ParamPublicID] = v
			}
			delete(params, "publicId")
		}

		cred, err := s.Sign(params)
		if err != nil {
			return writeAppError(c, err)
		}
		return c.JSON(cred)
	}
}
