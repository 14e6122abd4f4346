package handlers

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/cuadrilla-dispatch/internal/api/dto"
	"github.com/spec-kit/cuadrilla-dispatch/internal/service"
)

// CrewHandler manages crew endpoints.
type CrewHandler struct {
	service   *service.AssignmentService
	validator *validator.Validate
}

func NewCrewHandler(svc *service.AssignmentService, v *validator.Validate) *CrewHandler {
	return &CrewHandler{service: svc, validator: v}
}

// Create POST /api/cuadrillas.
func (h *CrewHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateCrewRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if err := dto.Validate(h.validator, req); err != nil {
		return err
	}
	crew, err := h.service.CreateCrew(c.UserContext(), service.CrewInput{
		Name:              req.Name,
		Phone:             req.Phone,
		SimultaneousLimit: req.SimultaneousLimit,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.NewCrewResponse(crew)})
}

// List GET /api/cuadrillas.
func (h *CrewHandler) List(c *fiber.Ctx) error {
	limit, offset := pageQuery(c, 50)
	crews, err := h.service.ListCrews(c.UserContext(), limit, offset)
	if err != nil {
		return err
	}
	resp := make([]dto.CrewResponse, 0, len(crews))
	for i := range crews {
		resp = append(resp, dto.NewCrewResponse(&crews[i]))
	}
	return c.JSON(fiber.Map{"data": resp})
}

// Get GET /api/cuadrillas/:id.
func (h *CrewHandler) Get(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	load, err := h.service.GetCrew(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewCrewLoadResponse(load)})
}

// Records GET /api/cuadrillas/:id/registros.
func (h *CrewHandler) Records(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	limit, offset := pageQuery(c, 50)
	records, err := h.service.ListCrewRecords(c.UserContext(), id, limit, offset)
	if err != nil {
		return err
	}
	resp := make([]dto.RecordResponse, 0, len(records))
	for i := range records {
		resp = append(resp, dto.NewRecordResponse(&records[i]))
	}
	return c.JSON(fiber.Map{"data": resp})
}

// Messages GET /api/cuadrillas/:id/mensajes.
func (h *CrewHandler) Messages(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	limit, offset := pageQuery(c, 100)
	msgs, err := h.service.ListCrewMessages(c.UserContext(), id, limit, offset)
	if err != nil {
		return err
	}
	resp := make([]dto.MessageResponse, 0, len(msgs))
	for _, msg := range msgs {
		resp = append(resp, dto.NewMessageResponse(msg))
	}
	return c.JSON(fiber.Map{"data": resp})
}
