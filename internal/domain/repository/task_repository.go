package repository

import (
	"context"

	"github.com/jhoicas/nfse-nacional/internal/domain/entity"
)

// TaskRepository define o porte de persistência das tasks de emissão.
// Todas as mutações são upserts de documento único (escopo de lock = 1 linha);
// os jobs periódicos não compartilham estado em memória.
type TaskRepository interface {
	Create(ctx context.Context, task *entity.Task) error
	GetByID(ctx context.Context, id string) (*entity.Task, error)
	// Update persiste status, DPS, XML assinado, transmit e marcas de tempo.
	Update(ctx context.Context, task *entity.Task) error
	Delete(ctx context.Context, id, userID string) error

	// ListByStatus devolve um lote limitado para um tick dos jobs (ordem de criação).
	ListByStatus(ctx context.Context, status string, limit int) ([]*entity.Task, error)
	// ListAcceptedWithoutDANFSe devolve notas aceitas com chave de acesso e sem
	// PDF oficial, para o backfill do DANFSe.
	ListAcceptedWithoutDANFSe(ctx context.Context, limit int) ([]*entity.Task, error)
}

// EmitterRepository: leitura do emissor/credencial. A mutação de certificado
// pertence ao colaborador de cadastro.
type EmitterRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Emitter, error)
	GetByIDForUser(ctx context.Context, id, userID string) (*entity.Emitter, error)
}

// ClientRepository: leitura do tomador, incluindo o sentinela não identificado.
type ClientRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Client, error)
	GetNaoIdentificado(ctx context.Context, userID, emitterID string) (*entity.Client, error)
}

// SequenceRepository aloca números de DPS por (emissor, série): atômico,
// monotônico, nunca decrementado. Número alocado e não usado vira lacuna
// permitida; jamais é reaproveitado.
type SequenceRepository interface {
	Next(ctx context.Context, emitterID string, serie int64) (int64, error)
}
