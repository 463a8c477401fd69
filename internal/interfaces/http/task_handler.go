package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/nfse-nacional/internal/application/dto"
	"github.com/jhoicas/nfse-nacional/internal/application/notas"
	"github.com/jhoicas/nfse-nacional/internal/domain"
	"github.com/jhoicas/nfse-nacional/internal/domain/entity"
	"github.com/jhoicas/nfse-nacional/internal/domain/repository"
)

// TaskHandler atende o ciclo de vida de emissão pela API.
type TaskHandler struct {
	emit     *notas.EmitService
	cancel   *notas.CancelService
	taskRepo repository.TaskRepository
}

// NewTaskHandler constrói o handler.
func NewTaskHandler(emit *notas.EmitService, cancel *notas.CancelService, taskRepo repository.TaskRepository) *TaskHandler {
	return &TaskHandler{emit: emit, cancel: cancel, taskRepo: taskRepo}
}

// Emitir POST /api/nfse
func (h *TaskHandler) Emitir(c *fiber.Ctx) error {
	userID := GetUserID(c)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "usuário não identificado"})
	}
	var in dto.EmitirRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "corpo inválido"})
	}
	valor, err := decimal.NewFromString(in.Valor)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "valor inválido"})
	}
	aliquota := decimal.Zero
	if in.Aliquota != "" {
		if aliquota, err = decimal.NewFromString(in.Aliquota); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "alíquota inválida"})
		}
	}

	task, err := h.emit.Emitir(c.Context(), notas.EmitirInput{
		UserID:    userID,
		EmitterID: in.EmitterID,
		ClientID:  in.ClientID,
		Intent: entity.ServiceIntent{
			Valor:       valor,
			Descricao:   in.Descricao,
			CTribNac:    in.CTribNac,
			Competencia: in.Competencia,
			ISSRetido:   in.ISSRetido,
			Aliquota:    aliquota,
			DataEmissao: in.DataEmissao,
		},
	})
	if err != nil {
		return errorJSON(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(taskResponse(task))
}

// GetByID GET /api/nfse/:id
func (h *TaskHandler) GetByID(c *fiber.Ctx) error {
	task, err := h.fetchOwned(c)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(taskResponse(task))
}

// BaixarXML GET /api/nfse/:id/xml
// Devolve o XML autorizado pela Sefin; sem ele, o envelope assinado da
// tentativa corrente.
func (h *TaskHandler) BaixarXML(c *fiber.Ctx) error {
	task, err := h.fetchOwned(c)
	if err != nil {
		return errorJSON(c, err)
	}
	xml := task.XMLAssinado
	if task.Transmit != nil && task.Transmit.XMLNfse != "" {
		xml = task.Transmit.XMLNfse
	}
	if xml == "" {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "task sem XML"})
	}
	c.Set(fiber.HeaderContentType, "application/xml; charset=utf-8")
	return c.SendString(xml)
}

// BaixarDANFSe GET /api/nfse/:id/danfse
func (h *TaskHandler) BaixarDANFSe(c *fiber.Ctx) error {
	task, err := h.fetchOwned(c)
	if err != nil {
		return errorJSON(c, err)
	}
	if task.Transmit == nil || task.Transmit.PDFBase64 == "" {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "DANFSe ainda não disponível"})
	}
	c.Set(fiber.HeaderContentType, "application/json")
	return c.JSON(fiber.Map{"pdf_base64": task.Transmit.PDFBase64})
}

// Cancelar POST /api/nfse/:id/cancelar
func (h *TaskHandler) Cancelar(c *fiber.Ctx) error {
	userID := GetUserID(c)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "usuário não identificado"})
	}
	var in dto.CancelarRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "corpo inválido"})
	}
	task, err := h.cancel.Cancelar(c.Context(), notas.CancelarInput{
		TaskID:        c.Params("id"),
		UserID:        userID,
		Justificativa: in.Justificativa,
		CMotivo:       in.CMotivo,
	})
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(taskResponse(task))
}

// Delete DELETE /api/nfse/:id
// Só tasks em estado terminal error podem ser descartadas.
func (h *TaskHandler) Delete(c *fiber.Ctx) error {
	task, err := h.fetchOwned(c)
	if err != nil {
		return errorJSON(c, err)
	}
	if task.Status != entity.TaskStatusError {
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{
			Code: "CONFLICT", Message: "só tasks em error podem ser descartadas",
		})
	}
	if err := h.taskRepo.Delete(c.Context(), task.ID, task.UserID); err != nil {
		return errorJSON(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *TaskHandler) fetchOwned(c *fiber.Ctx) (*entity.Task, error) {
	userID := GetUserID(c)
	if userID == "" {
		return nil, domain.ErrCredencial
	}
	task, err := h.taskRepo.GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return nil, err
	}
	if task == nil || task.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return task, nil
}

func taskResponse(task *entity.Task) dto.TaskResponse {
	return dto.TaskResponse{
		ID:          task.ID,
		Status:      task.Status,
		Serie:       task.DPS.Serie,
		Numero:      task.DPS.Numero,
		DpsID:       task.DPS.ID,
		ChaveAcesso: task.ChaveAcesso(),
		ErrorMsg:    task.ErrorMsg,
		CreatedAt:   task.CreatedAt,
		SentAt:      task.SentAt,
		CanceledAt:  task.CanceledAt,
	}
}

func errorJSON(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: err.Error()})
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrSchema):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: err.Error()})
	case errors.Is(err, domain.ErrConflict):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "CONFLICT", Message: err.Error()})
	case errors.Is(err, domain.ErrCredencial):
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "CREDENTIAL", Message: err.Error()})
	case errors.Is(err, domain.ErrTransporte):
		return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{Code: "UPSTREAM", Message: err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
}
