// Package http expõe a superfície fina da API: criar emissão, consultar o
// estado da task, baixar XML/DANFSe, cancelar e descartar.
package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/nfse-nacional/internal/application/notas"
	"github.com/jhoicas/nfse-nacional/internal/domain/repository"
)

// RouterDeps dependências do router.
type RouterDeps struct {
	Emit     *notas.EmitService
	Cancel   *notas.CancelService
	TaskRepo repository.TaskRepository
}

// Router registra as rotas da API.
func Router(app *fiber.App, deps RouterDeps) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	nfse := api.Group("/nfse")
	handler := NewTaskHandler(deps.Emit, deps.Cancel, deps.TaskRepo)
	nfse.Post("/", handler.Emitir)
	nfse.Get("/:id", handler.GetByID)
	nfse.Get("/:id/xml", handler.BaixarXML)
	nfse.Get("/:id/danfse", handler.BaixarDANFSe)
	nfse.Post("/:id/cancelar", handler.Cancelar)
	nfse.Delete("/:id", handler.Delete)
}

// GetUserID identifica o tenant da requisição. A autenticação fica no gateway
// na frente desta API; aqui só se propaga a identidade.
func GetUserID(c *fiber.Ctx) string {
	return c.Get("X-User-ID")
}
