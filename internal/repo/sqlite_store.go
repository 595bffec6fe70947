package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shaiso/Taskflow/internal/domain"
	"github.com/shaiso/Taskflow/internal/engine"
)

var _ engine.Store = (*SQLiteStore)(nil)

// SQLiteStore хранит flows в SQLite.
//
// Ожидает *sql.DB с драйвером modernc.org/sqlite (см. OpenSQLite).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore создаёт схему и возвращает SQLiteStore.
func NewSQLiteStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.initSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS taskflow_flows (
			flow_id    TEXT PRIMARY KEY,
			document   BLOB NOT NULL,
			updated_at TEXT NOT NULL
		);`,
	)
	if err != nil {
		return fmt.Errorf("create taskflow_flows: %w", err)
	}
	return nil
}

// SaveDocument заменяет содержимое таблицы flows документа в одной транзакции.
func (s *SQLiteStore) SaveDocument(ctx context.Context, doc domain.ManagerDocument) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM taskflow_flows`); err != nil {
		return fmt.Errorf("clear flows: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for _, fd := range doc.Flows {
		data, err := json.Marshal(fd)
		if err != nil {
			return fmt.Errorf("marshal flow %s: %w", fd.FlowID, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO taskflow_flows (flow_id, document, updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT (flow_id) DO UPDATE
			SET document = excluded.document, updated_at = excluded.updated_at`,
			fd.FlowID, data, now,
		)
		if err != nil {
			return fmt.Errorf("insert flow %s: %w", fd.FlowID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// LoadDocument читает все flows в порядке flow_id.
func (s *SQLiteStore) LoadDocument(ctx context.Context) (domain.ManagerDocument, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT flow_id, document
		FROM taskflow_flows
		ORDER BY flow_id`,
	)
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
