package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/pr-poehali-dev/client-support-chat-2/internal/api/dto"
	"github.com/pr-poehali-dev/client-support-chat-2/internal/domain"
	"github.com/pr-poehali-dev/client-support-chat-2/internal/service"
	apperrors "github.com/pr-poehali-dev/client-support-chat-2/pkg/util"
)

// OperatorsHandler manages operator availability endpoints.
type OperatorsHandler struct {
	service *service.OperatorService
}

// NewOperatorsHandler constructs handler.
func NewOperatorsHandler(operatorService *service.OperatorService) *OperatorsHandler {
	return &OperatorsHandler{service: operatorService}
}

// SetStatus PUT /operators/:name/status.
func (h *OperatorsHandler) SetStatus(c *fiber.Ctx) error {
	var req dto.SetOperatorStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Status == "" {
		return apperrors.NewValidationError("status required", nil)
	}

	operator, err := h.service.SetStatus(c.UserContext(), c.Params("name"), domain.OperatorStatus(req.Status))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": operatorResponse(operator)})
}

// List GET /operators.
func (h *OperatorsHandler) List(c *fiber.Ctx) error {
	operators, err := h.service.List(c.UserContext())
	if err != nil {
		return err
	}
	items := make([]dto.OperatorResponse, 0, len(operators))
	for i := range operators {
		items = append(items, operatorResponse(&operators[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

func operatorResponse(op *domain.Operator) dto.OperatorResponse {
	return dto.OperatorResponse{
		Name:        op.Name,
		Status:      string(op.Status),
		ActiveChats: op.ActiveChats,
	}
}
