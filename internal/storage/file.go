package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pixil98/go-isleborn/internal/owner"
)

const (
	filePrefix = "island_"
	fileSuffix = ".json"
)

// FileTier keeps one JSON file per owner in a directory.
type FileTier struct {
	path string
}

func NewFileTier(path string) (*FileTier, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("creating island directory: %w", err)
	}
	return &FileTier{path: path}, nil
}

func (s *FileTier) Name() string {
	return "file"
}

func (s *FileTier) Read(ctx context.Context, id owner.ID) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}

	jsonData, err := os.ReadFile(s.filePath(id))
	if os.IsNotExist(err) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("reading file: %w", err)
	}

	doc, err := Decode(jsonData)
	if err != nil {
		return Document{}, fmt.Errorf("unmarshalling %s: %w", filepath.Base(s.filePath(id)), err)
	}
	if doc.Owner == "" {
		doc.Owner = id
	}
	if err := doc.Validate(); err != nil {
		return Document{}, fmt.Errorf("validating %s: %w", filepath.Base(s.filePath(id)), err)
	}
	return doc, nil
}

func (s *FileTier) Write(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := doc.Validate(); err != nil {
		return fmt.Errorf("validating document: %w", err)
	}

	jsonData, err := Encode(doc, true)
	if err != nil {
		return fmt.Errorf("marshalling json: %w", err)
	}

	return atomicWrite(s.filePath(doc.Owner), jsonData, 0o644)
}

func (s *FileTier) Discard(_ context.Context, id owner.ID) error {
	err := os.Remove(s.filePath(id))
	if os.IsNotExist(err) {
		return ErrNotFound
	}
	return err
}

// Owners lists every owner with a file, ordered by name.
func (s *FileTier) Owners(_ context.Context) ([]owner.ID, error) {
	entries, err := os.ReadDir(s.path)
	if err != nil {
		return nil, fmt.Errorf("reading island directory: %w", err)
	}

	var out []owner.ID
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		id, err := owner.Parse(strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix))
		if err != nil {
			slog.Warn("skipping island file with invalid owner", "file", name, "error", err)
			continue
		}
		out = append(out, id)
	}
	slices.Sort(out)
	return out, nil
}

func (s *FileTier) filePath(id owner.ID) string {
	return filepath.Join(s.path, filePrefix+id.String()+fileSuffix)
}

// atomicWrite writes data to a temp file then renames it to the target path.
// This prevents partial or empty files if the process is interrupted.
func atomicWrite(path string, data []byte, perm os.FileMode) error {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmp := f.Name()

	_, werr := f.Write(data)
	cerr := f.Close()
	if werr == nil {
		werr = cerr
	}
	if werr == nil {
		werr = os.Chmod(tmp, perm)
	}
	if werr == nil {
		werr = os.Rename(tmp, path)
	}
	if werr != nil {
		if removeErr := os.Remove(tmp); removeErr != nil {
			slog.Warn("failed to remove temp file after write failure", "path", tmp, "error", removeErr)
		}
		return fmt.Errorf("writing %s: %w", filepath.Base(path), werr)
	}
	return nil
}
