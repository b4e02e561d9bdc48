package handler

import (
	"github.com/gofiber/fiber/v2"

	"apkrelay/internal/service"
)

// Deps are the services the HTTP surface is built on.
type Deps struct {
	History service.HistoryService
	Handoff service.HandoffService
	Signer  CredentialSigner
}

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
func RegisterRoutes(app *fiber.App, d Deps) {
	app.Get("/health", HealthCheck(d.History))
	app.Get("/healthz", LivenessProbe())

	app.Post("/sign", SignUpload(d.Signer))
	app.Post("/upload", UploadArtifact(d.Handoff))

	app.Get("/history", ListHistory(d.History))
	app.Get("/history/:id", GetHistory(d.History))
	app.Delete("/history/:id", DeleteHistory(d.History))
}
