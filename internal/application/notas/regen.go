package notas

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/jhoicas/nfse-nacional/internal/domain"
	"github.com/jhoicas/nfse-nacional/internal/domain/entity"
	"github.com/jhoicas/nfse-nacional/internal/domain/repository"
	infranfse "github.com/jhoicas/nfse-nacional/internal/infrastructure/nfse"
	pkgnfse "github.com/jhoicas/nfse-nacional/pkg/nfse"
)

// RegenService trata a rejeição "identificador de DPS repetido": aloca um
// número novo na série de retry, reescreve a identificação da DPS já
// construída (o conteúdo de negócio não muda), reassina e devolve a task
// para a fila de pendentes. Número repetido nunca é reutilizado.
type RegenService struct {
	txRunner    TxRunner
	emitterRepo repository.EmitterRepository
	signer      pkgnfse.Signer
	cfg         Config
	logger      zerolog.Logger
}

// NewRegenService constrói o serviço.
func NewRegenService(
	txRunner TxRunner,
	emitterRepo repository.EmitterRepository,
	signer pkgnfse.Signer,
	cfg Config,
	logger zerolog.Logger,
) *RegenService {
	return &RegenService{
		txRunner:    txRunner,
		emitterRepo: emitterRepo,
		signer:      signer,
		cfg:         cfg,
		logger:      logger.With().Str("component", "regen_service").Logger(),
	}
}

// Regenerar reconstrói a identificação de uma task retry_needed e a devolve
// a pending. Cada chamada consome um número novo; N retries produzem N
// números distintos mesmo que a transmissão seguinte falhe.
func (s *RegenService) Regenerar(ctx context.Context, task *entity.Task) error {
	if task.Status != entity.TaskStatusRetryNeeded {
		return fmt.Errorf("%w: task %s em %q, esperado retry_needed", domain.ErrConflict, task.ID, task.Status)
	}
	if task.XMLAssinado == "" {
		return fmt.Errorf("%w: task %s sem XML para regenerar", domain.ErrInvalidInput, task.ID)
	}

	emitter, err := s.emitterRepo.GetByID(ctx, task.EmitterID)
	if err != nil {
		return fmt.Errorf("buscar emissor: %w", err)
	}
	if emitter == nil {
		return fmt.Errorf("%w: emissor %s", domain.ErrNotFound, task.EmitterID)
	}
	cert, err := loadCertificate(emitter)
	if err != nil {
		return err
	}

	idAnterior := task.DPS.ID
	err = s.txRunner.Run(ctx, func(taskRepo repository.TaskRepository, seqRepo repository.SequenceRepository) error {
		numero, err := seqRepo.Next(ctx, emitter.ID, s.cfg.SerieRetry)
		if err != nil {
			return err
		}
		novoXML, novoID, err := infranfse.ReescreverIdentificacao([]byte(task.XMLAssinado), s.cfg.SerieRetry, numero)
		if err != nil {
			return err
		}
		signed, err := s.signer.Sign(novoXML, cert, infranfse.TagInfDPS)
		if err != nil {
			return fmt.Errorf("reassinar DPS: %w", err)
		}

		task.DPS = entity.DPSRef{Serie: s.cfg.SerieRetry, Numero: numero, ID: novoID}
		task.XMLAssinado = string(signed)
		task.Status = entity.TaskStatusPending
		return taskRepo.Update(ctx, task)
	})
	if err != nil {
		return err
	}

	s.logger.Info().
		Str("task_id", task.ID).
		Str("dps_id_anterior", idAnterior).
		Str("dps_id", task.DPS.ID).
		Msg("DPS regenerada após identificador repetido")
	return nil
}
