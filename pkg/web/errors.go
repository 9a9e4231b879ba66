package web

import (
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
	"github.com/pushgate/pushgate/pkg/persistence"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func conflict(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(409).
		WithInstance(c.Path()).
		WithType("conflict").
		WithDetail(detail)

	return c.Status(fiber.StatusConflict).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleStoreError provides typed error handling for persistence errors.
func handleStoreError(c fiber.Ctx, err error) error {
	switch {
	case persistence.IsPipelineNotFound(err):
		return notFound(c, "pipeline not found")
	case persistence.IsRunNotFound(err):
		return notFound(c, "run not found")
	default:
		return internalError(c, err)
	}
}
