package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Taskflow/internal/domain"
	"github.com/shaiso/Taskflow/internal/engine"
)

var _ engine.Store = (*PostgresStore)(nil)

// PostgresStore хранит flows в таблице taskflow_flows, по строке JSONB на flow.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore создаёт PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema создаёт таблицу, если её нет.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS taskflow_flows (
			flow_id    TEXT PRIMARY KEY,
			document   JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("create taskflow_flows: %w", err)
	}
	return nil
}

// SaveDocument заменяет содержимое таблицы flows документа.
// Вся запись идёт одной транзакцией.
func (s *PostgresStore) SaveDocument(ctx context.Context, doc domain.ManagerDocument) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM taskflow_flows`); err != nil {
		return fmt.Errorf("clear flows: %w", err)
	}

	batch := &pgx.Batch{}
	for _, fd := range doc.Flows {
		data, err := json.Marshal(fd)
		if err != nil {
			return fmt.Errorf("marshal flow %s: %w", fd.FlowID, err)
		}
		batch.Queue(`
			INSERT INTO taskflow_flows (flow_id, document, updated_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT (flow_id) DO UPDATE
			SET document = EXCLUDED.document, updated_at = EXCLUDED.updated_at
		`, fd.FlowID, data)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert flows: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// LoadDocument читает все flows в порядке flow_id.
func (s *PostgresStore) LoadDocument(ctx context.Context) (domain.ManagerDocument, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT flow_id, document
		FROM taskflow_flows
		ORDER BY flow_id
	`)
	if err != nil {
		return domain.ManagerDocument{}, fmt.Errorf("list flows: %w", err)
	}
	defer rows.Close()

	doc := domain.ManagerDocument{Flows: []domain.FlowDocument{}}
	for rows.Next() {
		var (
			id   string
			data []byte
		)
		if err := rows.Scan(&id, &data); err != nil {
			return domain.ManagerDocument{}, fmt.Errorf("scan flow: %w", err)
		}
		fd, err := decodeFlow(id, data)
		if err != nil {
			return domain.ManagerDocument{}, err
		}
		doc.Flows = append(doc.Flows, fd)
	}
	if err := rows.Err(); err != nil {
		return domain.ManagerDocument{}, fmt.Errorf("list flows: %w", err)
	}

	doc.FlowCount = len(doc.Flows)
	return doc, nil
}

// decodeFlow разбирает JSON документа flow из строки таблицы.
func decodeFlow(id string, data []byte) (domain.FlowDocument, error) {
	var fd domain.FlowDocument
	if err := json.Unmarshal(data, &fd); err != nil {
		return domain.FlowDocument{}, fmt.Errorf("%w: %s: %v", ErrCorruptDocument, id, err)
	}
	if fd.FlowID == "" {
		fd.FlowID = id
	}
	return fd, nil
}
