package notas

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jhoicas/nfse-nacional/internal/domain"
	"github.com/jhoicas/nfse-nacional/internal/domain/entity"
	domnfse "github.com/jhoicas/nfse-nacional/internal/domain/nfse"
	"github.com/jhoicas/nfse-nacional/internal/domain/repository"
)

// TransmitService entrega tasks pendentes à Sefin e aplica a tabela de
// decisão do ciclo de vida ao desfecho. Erro de transporte também é desfecho:
// a task vai para error com a causa registrada e pode ser reenviada
// manualmente.
type TransmitService struct {
	taskRepo    repository.TaskRepository
	emitterRepo repository.EmitterRepository
	clientRepo  repository.ClientRepository
	factory     TransmitterFactory
	renderer    DANFSeRenderer
	logger      zerolog.Logger
}

// NewTransmitService constrói o serviço. renderer pode ser nil: sem ele o
// backfill só usa o PDF oficial do ADN.
func NewTransmitService(
	taskRepo repository.TaskRepository,
	emitterRepo repository.EmitterRepository,
	clientRepo repository.ClientRepository,
	factory TransmitterFactory,
	renderer DANFSeRenderer,
	logger zerolog.Logger,
) *TransmitService {
	return &TransmitService{
		taskRepo:    taskRepo,
		emitterRepo: emitterRepo,
		clientRepo:  clientRepo,
		factory:     factory,
		renderer:    renderer,
		logger:      logger.With().Str("component", "transmit_service").Logger(),
	}
}

// Transmitir envia uma task pendente e persiste o desfecho.
func (s *TransmitService) Transmitir(ctx context.Context, task *entity.Task) error {
	log := s.logger.With().Str("task_id", task.ID).Logger()

	// markError leva a task ao estado terminal error com a causa registrada.
	markError := func(msg string) error {
		now := time.Now()
		task.Status = entity.TaskStatusError
		task.ErrorMsg = msg
		task.ErrorAt = &now
		if err := s.taskRepo.Update(ctx, task); err != nil {
			log.Error().Err(err).Msg("não foi possível persistir o estado error")
			return err
		}
		log.Warn().Str("motivo", msg).Msg("task marcada como error")
		return nil
	}

	if task.Status != entity.TaskStatusPending {
		return fmt.Errorf("%w: task %s em %q, esperado pending", domain.ErrConflict, task.ID, task.Status)
	}
	if task.XMLAssinado == "" {
		return markError("task pendente sem XML assinado")
	}

	emitter, err := s.emitterRepo.GetByID(ctx, task.EmitterID)
	if err != nil {
		return fmt.Errorf("buscar emissor: %w", err)
	}
	if emitter == nil {
		return markError(fmt.Sprintf("emissor %s não encontrado", task.EmitterID))
	}
	cert, err := loadCertificate(emitter)
	if err != nil {
		return markError(err.Error())
	}

	transmitter := s.factory(cert)
	res, raw, err := transmitter.Enviar(ctx, []byte(task.XMLAssinado))
	if err != nil {
		// Transporte falhou: o envelope não foi consumido, mas o desfecho fica
		// registrado; o reenvio é decisão do operador.
		log.Warn().Err(err).Msg("falha de transporte no envio")
		return markError(err.Error())
	}

	now := time.Now()
	task.Transmit = &entity.Transmissao{
		HTTPStatus:  res.HTTPStatus,
		RawResponse: raw,
		XMLNfse:     res.XMLNfse,
		IDDps:       res.IDDps,
		ChaveAcesso: res.ChaveAcesso,
		Erros:       res.Erros,
		SentAt:      now,
	}
	task.SentAt = &now
	task.Status = domnfse.ProximoEstado(res)

	switch task.Status {
	case entity.TaskStatusAccepted:
		log.Info().Str("chave_acesso", res.ChaveAcesso).Msg("NFS-e autorizada")
		// DANFSe logo após a autorização, dentro do orçamento curto de polling.
		// Indisponível não é fatal: o backfill periódico completa depois.
		if res.ChaveAcesso != "" {
			if pdfB64, pdfErr := transmitter.BaixarDANFSe(ctx, res.ChaveAcesso); pdfErr != nil {
				log.Warn().Err(pdfErr).Msg("DANFSe ainda indisponível após a autorização")
			} else {
				task.Transmit.PDFBase64 = pdfB64
			}
		}
	case entity.TaskStatusRetryNeeded:
		log.Warn().Str("dps_id", task.DPS.ID).Msg("identificador de DPS repetido; regeneração agendada")
	case entity.TaskStatusError:
		task.ErrorMsg = resumoErros(res)
		task.ErrorAt = &now
		log.Warn().Int("http_status", res.HTTPStatus).Str("motivo", task.ErrorMsg).Msg("NFS-e rejeitada")
	}

	if err := s.taskRepo.Update(ctx, task); err != nil {
		return fmt.Errorf("persistir desfecho da transmissão: %w", err)
	}
	return nil
}

// PreencherDANFSe completa o PDF de uma nota aceita: primeiro o oficial do
// ADN; indisponível, gera a representação de contingência local.
func (s *TransmitService) PreencherDANFSe(ctx context.Context, task *entity.Task) error {
	log := s.logger.With().Str("task_id", task.ID).Logger()

	chave := task.ChaveAcesso()
	if chave == "" || task.Transmit == nil {
		return fmt.Errorf("%w: task %s sem chave de acesso", domain.ErrInvalidInput, task.ID)
	}

	emitter, err := s.emitterRepo.GetByID(ctx, task.EmitterID)
	if err != nil || emitter == nil {
		return fmt.Errorf("buscar emissor: %w", err)
	}
	cert, err := loadCertificate(emitter)
	if err != nil {
		return err
	}

	pdfB64, err := s.factory(cert).BaixarDANFSe(ctx, chave)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if s.renderer == nil {
			return err
		}
		client, cErr := s.clientRepo.GetByID(ctx, task.ClientID)
		if cErr != nil {
			return cErr
		}
		pdfBytes, rErr := s.renderer.Render(ctx, task, emitter, client)
		if rErr != nil {
			return rErr
		}
		pdfB64 = base64.StdEncoding.EncodeToString(pdfBytes)
		log.Info().Msg("DANFSe oficial indisponível; usando representação de contingência")
	}

	task.Transmit.PDFBase64 = pdfB64
	if err := s.taskRepo.Update(ctx, task); err != nil {
		return fmt.Errorf("persistir DANFSe: %w", err)
	}
	return nil
}

// resumoErros condensa os erros estruturados (ou a mensagem livre) numa linha.
func resumoErros(res domnfse.Resultado) string {
	if len(res.Erros) == 0 {
		if res.Mensagem != "" {
			return res.Mensagem
		}
		return fmt.Sprintf("resposta sem nota autorizada (HTTP %d)", res.HTTPStatus)
	}
	parts := make([]string, 0, len(res.Erros))
	for _, e := range res.Erros {
		if e.Codigo != "" {
			parts = append(parts, e.Codigo+": "+e.Mensagem)
		} else {
			parts = append(parts, e.Mensagem)
		}
	}
	return strings.Join(parts, "; ")
}
