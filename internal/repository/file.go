package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/mmeshcher/bol-fulfillment/internal/model"
	"github.com/mmeshcher/bol-fulfillment/internal/validation"
)

const (
	pickingFile = "picking.json"
	labelsDir   = "labels"
	reportsDir  = "reports"
)

var reportName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*\.xlsx$`)

// FileRepository хранит лист комплектации в picking.json внутри каталога данных.
type FileRepository struct {
	dir string
}

// NewFileRepository создаёт хранилище в каталоге dir, создавая его при необходимости.
func NewFileRepository(dir string) (*FileRepository, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &FileRepository{dir: dir}, nil
}

// LoadItems читает лист комплектации. Отсутствующий файл означает пустой лист.
func (r *FileRepository) LoadItems(_ context.Context) ([]model.PickingItem, error) {
	data, err := os.ReadFile(filepath.Join(r.dir, pickingFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read picking list: %w", err)
	}

	var items []model.PickingItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode picking list: %w", err)
	}
	return items, nil
}

// SaveItems атомарно перезаписывает picking.json.
func (r *FileRepository) SaveItems(_ context.Context, items []model.PickingItem) error {
	if items == nil {
		items = []model.PickingItem{}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("encode picking list: %w", err)
	}
	return writeAtomic(filepath.Join(r.dir, pickingFile), data)
}

// Close ничего не делает: файл закрывается после каждой записи.
func (r *FileRepository) Close() error {
	return nil
}

// FileBlobs хранит PDF-этикетки и отчёты в подкаталогах каталога данных.
type FileBlobs struct {
	dir string
}

// NewFileBlobs создаёт хранилище файлов в каталоге dir.
func NewFileBlobs(dir string) (*FileBlobs, error) {
	for _, sub := range []string{labelsDir, reportsDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create %s dir: %w", sub, err)
		}
	}
	return &FileBlobs{dir: dir}, nil
}

// SaveLabel сохраняет этикетку как labels/<tracking>.pdf и возвращает путь относительно каталога данных.
func (b *FileBlobs) SaveLabel(_ context.Context, tracking string, pdf []byte) (string, error) {
	code := validation.NormalizeTrackingCode(tracking)
	if !validation.IsValidTrackingCode(code) {
		return "", fmt.Errorf("invalid tracking code %q", tracking)
	}

	ref := filepath.ToSlash(filepath.Join(labelsDir, code+".pdf"))
	if err := writeAtomic(filepath.Join(b.dir, labelsDir, code+".pdf"), pdf); err != nil {
		return "", fmt.Errorf("save label: %w", err)
	}
	return ref, nil
}

// Label возвращает сохранённую этикетку по трек-номеру.
func (b *FileBlobs) Label(_ context.Context, tracking string) ([]byte, error) {
	code := validation.NormalizeTrackingCode(tracking)
	if !validation.IsValidTrackingCode(code) {
		return nil, &model.NotFoundError{Kind: "label", ID: tracking}
	}
	return readBlob(filepath.Join(b.dir, labelsDir, code+".pdf"), "label", code)
}

// SaveReport сохраняет отчёт под именем name.
func (b *FileBlobs) SaveReport(_ context.Context, name string, data []byte) error {
	if !reportName.MatchString(name) {
		return fmt.Errorf("invalid report name %q", name)
	}
	if err := writeAtomic(filepath.Join(b.dir, reportsDir, name), data); err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

// Report возвращает содержимое отчёта.
func (b *FileBlobs) Report(_ context.Context, name string) ([]byte, error) {
	if !reportName.MatchString(name) {
		return nil, &model.NotFoundError{Kind: "report", ID: name}
	}
	return readBlob(filepath.Join(b.dir, reportsDir, name), "report", name)
}

// Reports возвращает список отчётов, новые первыми.
func (b *FileBlobs) Reports(_ context.Context) ([]model.Document, error) {
	entries, err := os.ReadDir(filepath.Join(b.dir, reportsDir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list reports: %w", err)
	}

	var docs []model.Document
	for _, e := range entries {
		if e.IsDir() || !reportName.MatchString(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		docs = append(docs, model.Document{
			Name:      e.Name(),
			Size:      info.Size(),
			CreatedAt: info.ModTime(),
		})
	}

	slices.SortFunc(docs, func(a, b model.Document) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.Name, a.Name)
	})
	return docs, nil
}

func readBlob(path, kind, id string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &model.NotFoundError{Kind: kind, ID: id}
		}
		return nil, fmt.Errorf("read %s: %w", kind, err)
	}
	return data, nil
}

// writeAtomic пишет во временный файл рядом с целевым и переименовывает его.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
