package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/jhoicas/nfse-nacional/internal/application/notas"
	"github.com/jhoicas/nfse-nacional/internal/domain/entity"
	"github.com/jhoicas/nfse-nacional/internal/domain/repository"
)

// Timeout por task dentro de um tick; uma task lenta não segura o lote inteiro
// além disso.
const taskTimeout = 30 * time.Second

// JobsConfig controla intervalos e tamanhos de lote dos jobs periódicos.
type JobsConfig struct {
	TransmitInterval time.Duration
	TransmitBatch    int
	RetryInterval    time.Duration
	RetryBatch       int
	DANFSeInterval   time.Duration
	DANFSeBatch      int
}

// Jobs agrupa as rotinas do motor de emissão sobre os serviços de aplicação.
type Jobs struct {
	taskRepo repository.TaskRepository
	transmit *notas.TransmitService
	regen    *notas.RegenService
	cfg      JobsConfig
	logger   zerolog.Logger
}

// NewJobs constrói o conjunto de jobs.
func NewJobs(
	taskRepo repository.TaskRepository,
	transmit *notas.TransmitService,
	regen *notas.RegenService,
	cfg JobsConfig,
	logger zerolog.Logger,
) *Jobs {
	return &Jobs{
		taskRepo: taskRepo,
		transmit: transmit,
		regen:    regen,
		cfg:      cfg,
		logger:   logger.With().Str("component", "jobs").Logger(),
	}
}

// All devolve os jobs prontos para o Runner.
func (j *Jobs) All() []Job {
	return []Job{
		{Name: "transmit_pending", Interval: j.cfg.TransmitInterval, Run: j.transmitPending},
		{Name: "regenerate_retry", Interval: j.cfg.RetryInterval, Run: j.regenerateRetry},
		{Name: "danfse_backfill", Interval: j.cfg.DANFSeInterval, Run: j.danfseBackfill},
	}
}

// transmitPending envia um lote de tasks pendentes. Falha numa task não
// derruba o lote: fica registrada e o tick segue.
func (j *Jobs) transmitPending(ctx context.Context) {
	tasks, err := j.taskRepo.ListByStatus(ctx, entity.TaskStatusPending, j.cfg.TransmitBatch)
	if err != nil {
		j.logger.Error().Err(err).Msg("listar tasks pendentes")
		return
	}
	for _, task := range tasks {
		j.runOne(ctx, "transmit_pending", task.ID, func(taskCtx context.Context) error {
			return j.transmit.Transmitir(taskCtx, task)
		})
	}
}

// regenerateRetry regenera identificação de tasks rejeitadas por DPS repetida
// e as devolve à fila de pendentes.
func (j *Jobs) regenerateRetry(ctx context.Context) {
	tasks, err := j.taskRepo.ListByStatus(ctx, entity.TaskStatusRetryNeeded, j.cfg.RetryBatch)
	if err != nil {
		j.logger.Error().Err(err).Msg("listar tasks retry_needed")
		return
	}
	for _, task := range tasks {
		j.runOne(ctx, "regenerate_retry", task.ID, func(taskCtx context.Context) error {
			return j.regen.Regenerar(taskCtx, task)
		})
	}
}

// danfseBackfill completa o PDF de notas aceitas que ainda não o têm.
func (j *Jobs) danfseBackfill(ctx context.Context) {
	tasks, err := j.taskRepo.ListAcceptedWithoutDANFSe(ctx, j.cfg.DANFSeBatch)
	if err != nil {
		j.logger.Error().Err(err).Msg("listar notas sem DANFSe")
		return
	}
	for _, task := range tasks {
		j.runOne(ctx, "danfse_backfill", task.ID, func(taskCtx context.Context) error {
			return j.transmit.PreencherDANFSe(taskCtx, task)
		})
	}
}

func (j *Jobs) runOne(ctx context.Context, job, taskID string, fn func(ctx context.Context) error) {
	taskCtx, cancel := context.WithTimeout(ctx, taskTimeout)
	defer cancel()
	if err := fn(taskCtx); err != nil {
		j.logger.Warn().Err(err).Str("job", job).Str("task_id", taskID).Msg("task falhou no tick")
	}
}
