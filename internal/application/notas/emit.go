package notas

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jhoicas/nfse-nacional/internal/domain"
	"github.com/jhoicas/nfse-nacional/internal/domain/entity"
	"github.com/jhoicas/nfse-nacional/internal/domain/repository"
	infranfse "github.com/jhoicas/nfse-nacional/internal/infrastructure/nfse"
	pkgnfse "github.com/jhoicas/nfse-nacional/pkg/nfse"
)

// EmitirInput é o pedido de emissão. ClientID vazio emite para o sentinela
// "tomador não identificado" do emissor.
type EmitirInput struct {
	UserID    string
	EmitterID string
	ClientID  string
	Intent    entity.ServiceIntent
}

// EmitService cria a task de emissão: aloca o número, monta e assina a DPS e
// grava a task pendente. A transmissão fica para o job periódico.
type EmitService struct {
	txRunner    TxRunner
	emitterRepo repository.EmitterRepository
	clientRepo  repository.ClientRepository
	builder     *infranfse.DPSBuilderService
	signer      pkgnfse.Signer
	cfg         Config
	logger      zerolog.Logger
}

// NewEmitService constrói o serviço com todas as dependências.
func NewEmitService(
	txRunner TxRunner,
	emitterRepo repository.EmitterRepository,
	clientRepo repository.ClientRepository,
	builder *infranfse.DPSBuilderService,
	signer pkgnfse.Signer,
	cfg Config,
	logger zerolog.Logger,
) *EmitService {
	return &EmitService{
		txRunner:    txRunner,
		emitterRepo: emitterRepo,
		clientRepo:  clientRepo,
		builder:     builder,
		signer:      signer,
		cfg:         cfg,
		logger:      logger.With().Str("component", "emit_service").Logger(),
	}
}

// Emitir valida o pedido, assina a DPS e persiste a task pendente. Alocação
// do número e gravação da task acontecem na mesma transação: se a gravação
// falhar, o número alocado vira lacuna e nunca é reaproveitado.
func (s *EmitService) Emitir(ctx context.Context, input EmitirInput) (*entity.Task, error) {
	emitter, err := s.emitterRepo.GetByIDForUser(ctx, input.EmitterID, input.UserID)
	if err != nil {
		return nil, fmt.Errorf("buscar emissor: %w", err)
	}
	if emitter == nil {
		return nil, fmt.Errorf("%w: emissor %s", domain.ErrNotFound, input.EmitterID)
	}

	client, err := s.resolveClient(ctx, input, emitter)
	if err != nil {
		return nil, err
	}

	cert, err := loadCertificate(emitter)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	task := &entity.Task{
		ID:        uuid.NewString(),
		UserID:    input.UserID,
		EmitterID: emitter.ID,
		ClientID:  client.ID,
		Status:    entity.TaskStatusPending,
		Intent:    input.Intent,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.txRunner.Run(ctx, func(taskRepo repository.TaskRepository, seqRepo repository.SequenceRepository) error {
		numero, err := seqRepo.Next(ctx, emitter.ID, s.cfg.SerieEmissao)
		if err != nil {
			return err
		}

		xmlBytes, err := s.builder.Build(&infranfse.DPSBuildContext{
			Emitter:  emitter,
			Client:   client,
			Intent:   input.Intent,
			Serie:    s.cfg.SerieEmissao,
			Numero:   numero,
			Ambiente: s.cfg.Ambiente,
			VerAplic: s.cfg.VerAplic,
		})
		if err != nil {
			return err
		}
		signed, err := s.signer.Sign(xmlBytes, cert, infranfse.TagInfDPS)
		if err != nil {
			return fmt.Errorf("assinar DPS: %w", err)
		}

		id, err := pkgnfse.DPSID(emitter.CodigoIBGE, emitter.CNPJ, s.cfg.SerieEmissao, numero)
		if err != nil {
			return err
		}
		task.DPS = entity.DPSRef{Serie: s.cfg.SerieEmissao, Numero: numero, ID: id}
		task.XMLAssinado = string(signed)
		return taskRepo.Create(ctx, task)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("task_id", task.ID).
		Str("dps_id", task.DPS.ID).
		Int64("numero", task.DPS.Numero).
		Msg("task de emissão criada")
	return task, nil
}

func (s *EmitService) resolveClient(ctx context.Context, input EmitirInput, emitter *entity.Emitter) (*entity.Client, error) {
	if input.ClientID == "" {
		client, err := s.clientRepo.GetNaoIdentificado(ctx, input.UserID, emitter.ID)
		if err != nil {
			return nil, fmt.Errorf("buscar tomador sentinela: %w", err)
		}
		if client == nil {
			return nil, fmt.Errorf("%w: emissor %s sem tomador não identificado cadastrado", domain.ErrNotFound, emitter.ID)
		}
		return client, nil
	}
	client, err := s.clientRepo.GetByID(ctx, input.ClientID)
	if err != nil {
		return nil, fmt.Errorf("buscar tomador: %w", err)
	}
	if client == nil || client.UserID != input.UserID {
		return nil, fmt.Errorf("%w: tomador %s", domain.ErrNotFound, input.ClientID)
	}
	return client, nil
}
