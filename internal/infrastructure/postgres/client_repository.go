package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/nfse-nacional/internal/domain/entity"
	"github.com/jhoicas/nfse-nacional/internal/domain/repository"
)

var _ repository.ClientRepository = (*ClientRepo)(nil)

// ClientRepo leitura do tomador, incluindo o sentinela não identificado.
type ClientRepo struct {
	q Querier
}

// NewClientRepository constrói o adaptador. Passar pool ou tx (Querier).
func NewClientRepository(q Querier) *ClientRepo {
	return &ClientRepo{q: q}
}

const clientColumns = `
	id, user_id, nome, coalesce(cnpj, ''), coalesce(cpf, ''), coalesce(email, ''),
	coalesce(cep, ''), coalesce(logradouro, ''), coalesce(numero, ''),
	coalesce(complemento, ''), coalesce(bairro, ''), coalesce(cidade, ''),
	coalesce(uf, ''), coalesce(codigo_ibge, ''), nao_identificado,
	created_at, updated_at`

// GetByID busca o tomador. Devolve (nil, nil) quando não existe.
func (r *ClientRepo) GetByID(ctx context.Context, id string) (*entity.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients WHERE id = $1`
	return r.scanOne(r.q.QueryRow(ctx, query, id))
}

// GetNaoIdentificado busca o sentinela "tomador não identificado" do emissor.
func (r *ClientRepo) GetNaoIdentificado(ctx context.Context, userID, emitterID string) (*entity.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients
		WHERE user_id = $1 AND emitter_id = $2 AND nao_identificado LIMIT 1`
	return r.scanOne(r.q.QueryRow(ctx, query, userID, emitterID))
}

func (r *ClientRepo) scanOne(row pgx.Row) (*entity.Client, error) {
	var c entity.Client
	err := row.Scan(
		&c.ID, &c.UserID, &c.Nome, &c.CNPJ, &c.CPF, &c.Email,
		&c.CEP, &c.Logradouro, &c.Numero,
		&c.Complemento, &c.Bairro, &c.Cidade,
		&c.UF, &c.CodigoIBGE, &c.NaoIdentificado,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get client: %w", err)
	}
	return &c, nil
}
