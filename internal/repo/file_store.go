package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/shaiso/Taskflow/internal/domain"
	"github.com/shaiso/Taskflow/internal/engine"
)

var _ engine.Store = (*FileStore)(nil)

// FileStore хранит коллекцию flows в одном JSON файле.
type FileStore struct {
	path string
}

// NewFileStore создаёт FileStore.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path возвращает путь к файлу.
func (s *FileStore) Path() string {
	return s.path
}

// SaveDocument записывает документ через временный файл и rename.
func (s *FileStore) SaveDocument(_ context.Context, doc domain.ManagerDocument) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal flows: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write flows file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close flows file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("rename flows file: %w", err)
	}
	return nil
}

// LoadDocument читает документ. Отсутствующий файл — пустая коллекция.
func (s *FileStore) LoadDocument(_ context.Context) (domain.ManagerDocument, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.ManagerDocument{Flows: []domain.FlowDocument{}}, nil
	}
	if err != nil {
		return domain.ManagerDocument{}, fmt.Errorf("read flows file: %w", err)
	}

	var doc domain.ManagerDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return domain.ManagerDocument{}, fmt.Errorf("%w: %s: %v", ErrCorruptDocument, s.path, err)
	}
	return doc, nil
}
