package handlers

import (
	"context"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/cuadrilla-dispatch/internal/api/dto"
	"github.com/spec-kit/cuadrilla-dispatch/internal/domain"
	"github.com/spec-kit/cuadrilla-dispatch/internal/service"
	apperrors "github.com/spec-kit/cuadrilla-dispatch/pkg/util"
)

// AssignmentHandler exposes the assignment transition triggers.
type AssignmentHandler struct {
	service   *service.AssignmentService
	sync      *service.StatusSynchronizer
	validator *validator.Validate
}

// NewAssignmentHandler constructs handler.
func NewAssignmentHandler(svc *service.AssignmentService, sync *service.StatusSynchronizer, v *validator.Validate) *AssignmentHandler {
	return &AssignmentHandler{service: svc, sync: sync, validator: v}
}

// Assign POST /api/asignar-reclamo.
func (h *AssignmentHandler) Assign(c *fiber.Ctx) error {
	var req dto.AssignRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if err := dto.Validate(h.validator, req); err != nil {
		return err
	}
	snapshot, err := req.Complaint.ParseSnapshot()
	if err != nil {
		return apperrors.NewValidationError("invalid complaint date", map[string]any{"complaint.date": req.Complaint.Date})
	}

	result, err := h.service.Assign(c.UserContext(), service.AssignInput{
		ComplaintID: req.ComplaintID,
		CrewID:      req.CrewID,
		Snapshot:    snapshot,
		Notify:      req.Notify,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.AssignResponse{
		Crew:   dto.NewCrewResponse(result.Crew),
		Record: dto.NewRecordResponse(result.Record),
	}})
}

// MarkInProgress POST /api/registros/:id/en-proceso.
func (h *AssignmentHandler) MarkInProgress(c *fiber.Ctx) error {
	return h.transition(c, h.service.MarkInProgress)
}

// MarkCompleted POST /api/registros/:id/completar.
func (h *AssignmentHandler) MarkCompleted(c *fiber.Ctx) error {
	return h.transition(c, h.service.MarkCompleted)
}

type transitionFunc func(ctx context.Context, recordID int64, notify bool) (*domain.AssignmentRecord, error)

func (h *AssignmentHandler) transition(c *fiber.Ctx, fn transitionFunc) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req dto.TransitionRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	rec, err := fn(c.UserContext(), id, req.Notify)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewRecordResponse(rec)})
}

// GetRecord GET /api/registros/:id.
func (h *AssignmentHandler) GetRecord(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	rec, err := h.service.GetRecord(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewRecordResponse(rec)})
}

// PendingSync GET /api/reclamos/:id/sincronizacion lists status pushes that
// have not reached the Reclamos API yet.
func (h *AssignmentHandler) PendingSync(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	tasks, err := h.sync.PendingTasks(c.UserContext(), id)
	if err != nil {
		return apperrors.MapError(err)
	}
	resp := make([]dto.SyncTaskResponse, 0, len(tasks))
	for _, task := range tasks {
		resp = append(resp, dto.NewSyncTaskResponse(task))
	}
	return c.JSON(fiber.Map{"data": resp})
}

// parseBody decodes a JSON body. An empty body leaves dst untouched.
func parseBody(c *fiber.Ctx, dst any) error {
	if len(c.Body()) == 0 {
		return nil
	}
	if err := c.BodyParser(dst); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	return nil
}

func pathID(c *fiber.Ctx, key string) (int64, error) {
	id, err := strconv.ParseInt(c.Params(key), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewValidationError("invalid "+key, map[string]any{key: c.Params(key)})
	}
	return id, nil
}

func parseIntQuery(c *fiber.Ctx, key string, defaultVal int) int {
	if val := c.Query(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultVal
}

// pageQuery reads page and page_size into limit and offset.
func pageQuery(c *fiber.Ctx, defaultSize int) (int, int) {
	page := parseIntQuery(c, "page", 1)
	pageSize := parseIntQuery(c, "page_size", defaultSize)
	return pageSize, (page - 1) * pageSize
}
