package postgres

import (
	"context"
	"fmt"

	"github.com/jhoicas/nfse-nacional/internal/domain/repository"
)

var _ repository.SequenceRepository = (*SequenceRepo)(nil)

// SequenceRepo aloca números de DPS por (emissor, série) com um upsert
// atômico de linha única: sob concorrência cada chamada recebe um número
// distinto e o contador nunca anda para trás. Número alocado e não usado
// vira lacuna; lacunas são permitidas, reuso não.
type SequenceRepo struct {
	q Querier
}

// NewSequenceRepository constrói o adaptador. Passar pool ou tx (Querier).
func NewSequenceRepository(q Querier) *SequenceRepo {
	return &SequenceRepo{q: q}
}

// Next devolve o próximo número da série, criando o contador em 1 na
// primeira alocação.
func (r *SequenceRepo) Next(ctx context.Context, emitterID string, serie int64) (int64, error) {
	query := `
		INSERT INTO dps_counters (emitter_id, serie, next, updated_at)
		VALUES ($1, $2, 1, now())
		ON CONFLICT (emitter_id, serie)
		DO UPDATE SET next = dps_counters.next + 1, updated_at = now()
		RETURNING next`
	var next int64
	if err := r.q.QueryRow(ctx, query, emitterID, serie).Scan(&next); err != nil {
		return 0, fmt.Errorf("alocar número da DPS: %w", err)
	}
	return next, nil
}
