package web

import (
	"errors"

	"github.com/dukex/portalflow/pkg/ingress"
	"github.com/dukex/portalflow/pkg/services"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
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

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleServiceError maps service and ingress errors to problem responses.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case services.IsValidationError(err), errors.Is(err, ingress.ErrInvalidRecord):
		return badRequest(c, err.Error())

	case errors.Is(err, services.ErrBatchRunNotFound):
		problem := problems.NewStatusProblem(404).
			WithInstance(c.Path()).
			WithType("batch_run_not_found").
			WithDetail("batch run not found")

		return c.Status(fiber.StatusNotFound).JSON(problem)

	case errors.Is(err, services.ErrBatchNotFound):
		problem := problems.NewStatusProblem(404).
			WithInstance(c.Path()).
			WithType("batch_not_found").
			WithDetail("batch not found")

		return c.Status(fiber.StatusNotFound).JSON(problem)

	case services.IsNotFoundError(err):
		return notFound(c, err.Error())

	default:
		return internalError(c, err)
	}
}
