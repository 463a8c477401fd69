package notas

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jhoicas/nfse-nacional/internal/domain"
	"github.com/jhoicas/nfse-nacional/internal/domain/entity"
	"github.com/jhoicas/nfse-nacional/internal/domain/repository"
	infranfse "github.com/jhoicas/nfse-nacional/internal/infrastructure/nfse"
	pkgnfse "github.com/jhoicas/nfse-nacional/pkg/nfse"
)

// CancelarInput é o pedido de cancelamento de uma nota aceita.
type CancelarInput struct {
	TaskID        string
	UserID        string
	Justificativa string
	CMotivo       string // vazio vira "9" (outros)
}

// CancelService registra o evento de cancelamento (e101101) de uma NFS-e
// autorizada. Rejeição da Sefin mantém a nota accepted; só a confirmação
// leva a canceled.
type CancelService struct {
	taskRepo    repository.TaskRepository
	emitterRepo repository.EmitterRepository
	builder     *infranfse.EventoBuilderService
	signer      pkgnfse.Signer
	factory     TransmitterFactory
	cfg         Config
	logger      zerolog.Logger
}

// NewCancelService constrói o serviço.
func NewCancelService(
	taskRepo repository.TaskRepository,
	emitterRepo repository.EmitterRepository,
	builder *infranfse.EventoBuilderService,
	signer pkgnfse.Signer,
	factory TransmitterFactory,
	cfg Config,
	logger zerolog.Logger,
) *CancelService {
	return &CancelService{
		taskRepo:    taskRepo,
		emitterRepo: emitterRepo,
		builder:     builder,
		signer:      signer,
		factory:     factory,
		cfg:         cfg,
		logger:      logger.With().Str("component", "cancel_service").Logger(),
	}
}

// Cancelar monta, assina e envia o pedido de registro do evento e aplica o
// desfecho à task.
func (s *CancelService) Cancelar(ctx context.Context, input CancelarInput) (*entity.Task, error) {
	task, err := s.taskRepo.GetByID(ctx, input.TaskID)
	if err != nil {
		return nil, fmt.Errorf("buscar task: %w", err)
	}
	if task == nil || task.UserID != input.UserID {
		return nil, fmt.Errorf("%w: task %s", domain.ErrNotFound, input.TaskID)
	}
	if !task.PodeCancelar() {
		return nil, fmt.Errorf("%w: task %s em %q não pode ser cancelada (exige accepted com chave de acesso)",
			domain.ErrConflict, task.ID, task.Status)
	}

	emitter, err := s.emitterRepo.GetByIDForUser(ctx, task.EmitterID, input.UserID)
	if err != nil {
		return nil, fmt.Errorf("buscar emissor: %w", err)
	}
	if emitter == nil {
		return nil, fmt.Errorf("%w: emissor %s", domain.ErrNotFound, task.EmitterID)
	}
	cert, err := loadCertificate(emitter)
	if err != nil {
		return nil, err
	}

	chave := task.ChaveAcesso()
	eventoXML, err := s.builder.Build(&infranfse.EventoBuildContext{
		Emitter:       emitter,
		ChaveAcesso:   chave,
		Justificativa: input.Justificativa,
		CMotivo:       input.CMotivo,
		NPedReg:       1,
		Ambiente:      s.cfg.Ambiente,
		VerAplic:      s.cfg.VerAplic,
	})
	if err != nil {
		return nil, err
	}
	signed, err := s.signer.Sign(eventoXML, cert, infranfse.TagInfPedReg)
	if err != nil {
		return nil, fmt.Errorf("assinar evento: %w", err)
	}

	res, raw, err := s.factory(cert).EnviarEvento(ctx, signed, chave)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	task.CancelEvent = &entity.Transmissao{
		HTTPStatus:  res.HTTPStatus,
		RawResponse: raw,
		ChaveAcesso: chave,
		Erros:       res.Erros,
		SentAt:      now,
	}
	if res.Sucesso2xx() && len(res.Erros) == 0 {
		task.Status = entity.TaskStatusCanceled
		task.CanceledAt = &now
		s.logger.Info().Str("task_id", task.ID).Str("chave_acesso", chave).Msg("NFS-e cancelada")
	} else {
		// Evento rejeitado: a nota segue válida (accepted); o desfecho fica
		// registrado para o operador.
		s.logger.Warn().
			Str("task_id", task.ID).
			Int("http_status", res.HTTPStatus).
			Int("erros", len(res.Erros)).
			Msg("evento de cancelamento rejeitado pela Sefin")
	}

	if err := s.taskRepo.Update(ctx, task); err != nil {
		return nil, fmt.Errorf("persistir desfecho do cancelamento: %w", err)
	}
	return task, nil
}
