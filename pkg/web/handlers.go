package web

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dukex/portalflow/pkg/ingress"
	"github.com/dukex/portalflow/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

var errInvalidID = errors.New("id must be a positive integer")

type EventHandler interface {
	HandleBatch(ctx context.Context, batch ingress.RecordBatch) ingress.BatchResult
}

type APIHandlers struct {
	workflowService *services.Workflow
	batchService    *services.Batch
	events          EventHandler
	validator       *validator.Validate
}

func NewAPIHandlers(
	workflowService *services.Workflow,
	batchService *services.Batch,
	events EventHandler,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		workflowService: workflowService,
		batchService:    batchService,
		events:          events,
		validator:       validator,
	}
}

func (h *APIHandlers) GetBatchRuns(c fiber.Ctx) error {
	req, err := h.parseListBatchRunsRequest(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	runs, err := h.batchService.ListBatchRuns(c.Context(), *req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"batch_runs":  runs,
		"total_count": len(runs),
	})
}

func (h *APIHandlers) parseListBatchRunsRequest(c fiber.Ctx) (*services.ListBatchRunsRequest, error) {
	req := &services.ListBatchRunsRequest{}

	if runningStr := c.Query("running"); runningStr != "" {
		running, err := strconv.ParseBool(runningStr)
		if err != nil {
			return nil, err
		}

		req.Running = &running
	}

	req.Step = c.Query("step")

	if batchIDStr := c.Query("batch_id"); batchIDStr != "" {
		batchID, err := strconv.ParseInt(batchIDStr, 10, 64)
		if err != nil {
			return nil, err
		}

		req.BatchID = batchID
	}

	// older_than takes a duration such as 90m or 2h.
	if olderThanStr := c.Query("older_than"); olderThanStr != "" {
		olderThan, err := time.ParseDuration(olderThanStr)
		if err != nil {
			return nil, err
		}

		req.OlderThan = olderThan
	}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return nil, err
		}

		req.Limit = limit
	}

	return req, nil
}

func (h *APIHandlers) GetBatchRun(c fiber.Ctx) error {
	id, err := batchRunID(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	run, err := h.batchService.GetBatchRun(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	batch, err := h.batchService.GetBatch(c.Context(), run.BatchID)
	if err != nil {
		return handleServiceError(c, err)
	}

	workflows, err := h.workflowService.ListByBatchRun(c.Context(), run.ID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(BatchRunResponse{
		BatchRun:  run,
		Status:    run.Status(),
		Batch:     batch,
		Workflows: workflows,
	})
}

// ResetBatchRun releases a batch run so the step can be dispatched again.
func (h *APIHandlers) ResetBatchRun(c fiber.Ctx) error {
	id, err := batchRunID(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	run, err := h.batchService.ResetBatchRun(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	if run == nil {
		return handleServiceError(c, services.ErrBatchRunNotFound)
	}

	workflows, err := h.workflowService.ListByBatchRun(c.Context(), run.ID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(ResetBatchRunResponse{
		BatchRun: run,
		Status:   run.Status(),
		Children: len(workflows),
	})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	runID := c.Params("runId")
	versionID := c.Params("versionId")

	if runID == "" || versionID == "" {
		return badRequest(c, "Workflow run ID and version ID are required")
	}

	workflow, err := h.workflowService.FindOrNone(c.Context(), runID, versionID)
	if err != nil {
		return handleServiceError(c, err)
	}

	if workflow == nil {
		return notFound(c, "Workflow not found")
	}

	return c.JSON(workflow)
}

// PostEvents accepts an event envelope and reports the records that failed.
func (h *APIHandlers) PostEvents(c fiber.Ctx) error {
	var batch ingress.RecordBatch
	if err := c.Bind().JSON(&batch); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if len(batch.Records) == 0 {
		return badRequest(c, "Records cannot be empty")
	}

	result := h.events.HandleBatch(c.Context(), batch)

	return c.JSON(result)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.workflowService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Portalflow API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		message = "Portalflow API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func batchRunID(c fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errInvalidID
	}

	return id, nil
}
