package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/nfse-nacional/internal/domain/entity"
	"github.com/jhoicas/nfse-nacional/internal/domain/repository"
)

var _ repository.EmitterRepository = (*EmitterRepo)(nil)

// EmitterRepo leitura do emissor e do bundle de credencial.
type EmitterRepo struct {
	q Querier
}

// NewEmitterRepository constrói o adaptador. Passar pool ou tx (Querier).
func NewEmitterRepository(q Querier) *EmitterRepo {
	return &EmitterRepo{q: q}
}

const emitterColumns = `
	id, user_id, razao_social, cnpj, inscricao_municipal, regime_tributacao,
	email, codigo_ibge, certificado_path, senha_certificado,
	coalesce(validade_certificado, ''), created_at, updated_at`

// GetByID busca o emissor. Devolve (nil, nil) quando não existe.
func (r *EmitterRepo) GetByID(ctx context.Context, id string) (*entity.Emitter, error) {
	query := `SELECT ` + emitterColumns + ` FROM emitters WHERE id = $1`
	return r.scanOne(r.q.QueryRow(ctx, query, id))
}

// GetByIDForUser busca o emissor checando a posse: credencial de um tenant
// nunca assina nota de outro.
func (r *EmitterRepo) GetByIDForUser(ctx context.Context, id, userID string) (*entity.Emitter, error) {
	query := `SELECT ` + emitterColumns + ` FROM emitters WHERE id = $1 AND user_id = $2`
	return r.scanOne(r.q.QueryRow(ctx, query, id, userID))
}

func (r *EmitterRepo) scanOne(row pgx.Row) (*entity.Emitter, error) {
	var e entity.Emitter
	err := row.Scan(
		&e.ID, &e.UserID, &e.RazaoSocial, &e.CNPJ, &e.InscricaoMunicipal, &e.RegimeTributacao,
		&e.Email, &e.CodigoIBGE, &e.CertificadoPath, &e.SenhaCertificado,
		&e.ValidadeCertificado, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get emitter: %w", err)
	}
	return &e, nil
}
