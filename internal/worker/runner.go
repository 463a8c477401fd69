// Package worker executa os jobs periódicos do motor de emissão: transmissão
// de pendentes, regeneração de retry_needed e backfill do DANFSe.
//
// Não há fila distribuída nem lock entre instâncias: cada job varre um lote
// limitado e toda mutação é um update de linha única, então um tick atrasado
// ou repetido não corrompe estado.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Job é uma rotina periódica nomeada.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context)
}

// Runner dispara cada job no seu intervalo até o contexto morrer. Um tick só
// começa depois que o anterior do mesmo job terminou.
type Runner struct {
	jobs   []Job
	logger zerolog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRunner constrói o runner.
func NewRunner(logger zerolog.Logger, jobs ...Job) *Runner {
	return &Runner{jobs: jobs, logger: logger.With().Str("component", "worker").Logger()}
}

// Start sobe uma goroutine por job.
func (r *Runner) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	for _, job := range r.jobs {
		r.wg.Add(1)
		go r.loop(ctx, job)
	}
	r.logger.Info().Int("jobs", len(r.jobs)).Msg("workers iniciados")
}

// Stop cancela os jobs e espera o tick corrente terminar.
func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.logger.Info().Msg("workers parados")
}

func (r *Runner) loop(ctx context.Context, job Job) {
	defer r.wg.Done()
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job.Run(ctx)
		}
	}
}
