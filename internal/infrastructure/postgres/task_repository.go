package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/nfse-nacional/internal/domain"
	"github.com/jhoicas/nfse-nacional/internal/domain/entity"
	"github.com/jhoicas/nfse-nacional/internal/domain/repository"
)

var _ repository.TaskRepository = (*TaskRepo)(nil)

// TaskRepo persiste as tasks de emissão. Intent e desfechos de transmissão
// vão em JSONB: são documentos imutáveis por tentativa, não colunas de busca.
type TaskRepo struct {
	q Querier
}

// NewTaskRepository constrói o adaptador. Passar pool ou tx (Querier).
func NewTaskRepository(q Querier) *TaskRepo {
	return &TaskRepo{q: q}
}

const taskColumns = `
	id, user_id, emitter_id, client_id, status,
	intent, dps_serie, dps_numero, dps_id, xml_assinado,
	transmit, cancel_event, error_msg,
	created_at, sent_at, canceled_at, error_at, updated_at`

// Create persiste uma task nova.
func (r *TaskRepo) Create(ctx context.Context, task *entity.Task) error {
	intentJSON, transmitJSON, cancelJSON, err := marshalTaskDocs(task)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO nfse_tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`
	_, err = r.q.Exec(ctx, query,
		task.ID, task.UserID, task.EmitterID, task.ClientID, task.Status,
		intentJSON, task.DPS.Serie, task.DPS.Numero, task.DPS.ID, task.XMLAssinado,
		transmitJSON, cancelJSON, task.ErrorMsg,
		task.CreatedAt, task.SentAt, task.CanceledAt, task.ErrorAt, task.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// GetByID busca uma task. Devolve (nil, nil) quando não existe.
func (r *TaskRepo) GetByID(ctx context.Context, id string) (*entity.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM nfse_tasks WHERE id = $1`
	task, err := scanTask(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// Update regrava o estado mutável da task (status, DPS corrente, XML
// assinado, desfechos e marcas de tempo). Escopo de lock = 1 linha.
func (r *TaskRepo) Update(ctx context.Context, task *entity.Task) error {
	intentJSON, transmitJSON, cancelJSON, err := marshalTaskDocs(task)
	if err != nil {
		return err
	}
	query := `
		UPDATE nfse_tasks SET
			status = $2, intent = $3,
			dps_serie = $4, dps_numero = $5, dps_id = $6, xml_assinado = $7,
			transmit = $8, cancel_event = $9, error_msg = $10,
			sent_at = $11, canceled_at = $12, error_at = $13, updated_at = now()
		WHERE id = $1`
	tag, err := r.q.Exec(ctx, query,
		task.ID, task.Status, intentJSON,
		task.DPS.Serie, task.DPS.Numero, task.DPS.ID, task.XMLAssinado,
		transmitJSON, cancelJSON, task.ErrorMsg,
		task.SentAt, task.CanceledAt, task.ErrorAt,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Delete remove uma task do usuário. Só o dono apaga.
func (r *TaskRepo) Delete(ctx context.Context, id, userID string) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM nfse_tasks WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListByStatus devolve um lote limitado em ordem de criação, para um tick
// dos jobs periódicos.
func (r *TaskRepo) ListByStatus(ctx context.Context, status string, limit int) ([]*entity.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM nfse_tasks WHERE status = $1 ORDER BY created_at LIMIT $2`
	rows, err := r.q.Query(ctx, query, status, limit)
	if err != nil {
		return nil, fmt.Errorf("list tasks by status: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

// ListAcceptedWithoutDANFSe devolve notas aceitas com chave de acesso e sem
// PDF oficial, para o backfill do DANFSe.
func (r *TaskRepo) ListAcceptedWithoutDANFSe(ctx context.Context, limit int) ([]*entity.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM nfse_tasks
		WHERE status = $1
		  AND coalesce(transmit->>'ChaveAcesso', '') <> ''
		  AND coalesce(transmit->>'PDFBase64', '') = ''
		ORDER BY created_at LIMIT $2`
	rows, err := r.q.Query(ctx, query, entity.TaskStatusAccepted, limit)
	if err != nil {
		return nil, fmt.Errorf("list tasks without danfse: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

func marshalTaskDocs(task *entity.Task) (intentJSON, transmitJSON, cancelJSON []byte, err error) {
	if intentJSON, err = json.Marshal(task.Intent); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal intent: %w", err)
	}
	if task.Transmit != nil {
		if transmitJSON, err = json.Marshal(task.Transmit); err != nil {
			return nil, nil, nil, fmt.Errorf("marshal transmit: %w", err)
		}
	}
	if task.CancelEvent != nil {
		if cancelJSON, err = json.Marshal(task.CancelEvent); err != nil {
			return nil, nil, nil, fmt.Errorf("marshal cancel_event: %w", err)
		}
	}
	return intentJSON, transmitJSON, cancelJSON, nil
}

func scanTask(row pgx.Row) (*entity.Task, error) {
	var t entity.Task
	var intentJSON, transmitJSON, cancelJSON []byte
	err := row.Scan(
		&t.ID, &t.UserID, &t.EmitterID, &t.ClientID, &t.Status,
		&intentJSON, &t.DPS.Serie, &t.DPS.Numero, &t.DPS.ID, &t.XMLAssinado,
		&transmitJSON, &cancelJSON, &t.ErrorMsg,
		&t.CreatedAt, &t.SentAt, &t.CanceledAt, &t.ErrorAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(intentJSON) > 0 {
		if err := json.Unmarshal(intentJSON, &t.Intent); err != nil {
			return nil, fmt.Errorf("unmarshal intent: %w", err)
		}
	}
	if len(transmitJSON) > 0 {
		t.Transmit = &entity.Transmissao{}
		if err := json.Unmarshal(transmitJSON, t.Transmit); err != nil {
			return nil, fmt.Errorf("unmarshal transmit: %w", err)
		}
	}
	if len(cancelJSON) > 0 {
		t.CancelEvent = &entity.Transmissao{}
		if err := json.Unmarshal(cancelJSON, t.CancelEvent); err != nil {
			return nil, fmt.Errorf("unmarshal cancel_event: %w", err)
		}
	}
	return &t, nil
}

func collectTasks(rows pgx.Rows) ([]*entity.Task, error) {
	var list []*entity.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		list = append(list, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return list, nil
}
