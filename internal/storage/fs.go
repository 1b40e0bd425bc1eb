package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// FSStore кладёт блобы в каталоги, шардированные по первым двум символам
// локатора, чтобы не упереться в лимиты на число файлов в каталоге.
type FSStore struct {
	root string
}

// NewFSStore создаёт корневой каталог с правами 0700.
func NewFSStore(root string) (*FSStore, error) {
	if root == "" {
		return nil, errors.New("storage: empty fs root")
	}
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("storage: init fs root: %w", err)
	}
	return &FSStore{root: root}, nil
}

func (s *FSStore) path(locator string) (string, error) {
	// локатор — наш собственный uuid; всё остальное отвергаем,
	// чтобы исключить выход за пределы корня
	if _, err := uuid.Parse(locator); err != nil {
		return "", fmt.Errorf("storage: bad locator %q", locator)
	}
	return filepath.Join(s.root, locator[:2], locator), nil
}

func (s *FSStore) Put(ctx context.Context, data []byte) (string, error) {
	locator := uuid.NewString()
	p, err := s.path(locator)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return "", fmt.Errorf("storage: mkdir shard: %w", err)
	}
	// пишем во временный файл и переименовываем, чтобы не отдать
	// частично записанный блоб при падении посреди записи
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return "", fmt.Errorf("storage: write blob: %w", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("storage: commit blob: %w", err)
	}
	return locator, nil
}

func (s *FSStore) Get(ctx context.Context, locator string) ([]byte, error) {
	p, err := s.path(locator)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: read blob: %w", err)
	}
	return data, nil
}

func (s *FSStore) Delete(ctx context.Context, locator string) error {
	p, err := s.path(locator)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage: delete blob: %w", err)
	}
	return nil
}

var _ BlobStore = (*FSStore)(nil)
