package usecases

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/campusify/coursechat/internal/domain/entities"
	"github.com/campusify/coursechat/internal/domain/ports"
)

// unitDepth is the number of directories between the uploads root and a file:
// <regulation>/<year>/<semester>/<subject>/<unit>/<file>.
const unitDepth = 5

// CatalogUseCase keeps the material catalog in sync with an uploads directory.
type CatalogUseCase struct {
	catalog    ports.MaterialCatalog
	root       string
	extensions []string
}

// NewCatalogUseCase creates a CatalogUseCase for the uploads tree at root.
func NewCatalogUseCase(catalog ports.MaterialCatalog, root string, extensions []string) *CatalogUseCase {
	if len(extensions) == 0 {
		extensions = []string{".pdf"}
	}
	return &CatalogUseCase{
		catalog:    catalog,
		root:       root,
		extensions: extensions,
	}
}

// Sync walks the uploads tree and registers every unit directory that holds files.
// It returns the number of materials registered.
func (uc *CatalogUseCase) Sync(ctx context.Context) (int, error) {
	units := make(map[string]bool)
	err := filepath.WalkDir(uc.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") || !uc.isIndexed(path) {
			return nil
		}
		if dir := filepath.Dir(path); uc.isUnitDir(dir) {
			units[dir] = true
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("walking uploads: %w", err)
	}

	dirs := make([]string, 0, len(units))
	for dir := range units {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)

	count := 0
	for _, dir := range dirs {
		if _, err := uc.indexUnit(ctx, dir); err != nil {
			return count, err
		}
		count++
	}

	log.Printf("[INFO] Catalog sync registered %d materials from %s", count, uc.root)
	return count, nil
}

// Run applies watcher events to the catalog until ctx is done or events closes.
func (uc *CatalogUseCase) Run(ctx context.Context, events <-chan ports.FileEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := uc.HandleEvent(ctx, ev); err != nil {
				log.Printf("[ERROR] Catalog update for %s: %v", ev.Path, err)
			}
		}
	}
}

// HandleEvent updates the catalog for a single file change.
func (uc *CatalogUseCase) HandleEvent(ctx context.Context, ev ports.FileEvent) error {
	if !uc.isIndexed(ev.Path) {
		return nil
	}

	switch ev.Operation {
	case ports.FileDeleted:
		rel, err := uc.relative(ev.Path)
		if err != nil {
			return err
		}
		return uc.catalog.RemoveFile(ctx, rel)
	default:
		dir := filepath.Dir(ev.Path)
		if !uc.isUnitDir(dir) {
			return nil
		}
		_, err := uc.indexUnit(ctx, dir)
		return err
	}
}

// indexUnit registers (or replaces) the material for one unit directory.
// A directory without indexed files yields a nil material.
func (uc *CatalogUseCase) indexUnit(ctx context.Context, dir string) (*entities.CourseMaterial, error) {
	rel, err := uc.relative(dir)
	if err != nil {
		return nil, err
	}
	parts := strings.Split(rel, "/")

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	material := &entities.CourseMaterial{
		ID:         generateMaterialID(rel),
		Regulation: parts[0],
		Year:       parts[1],
		Semester:   parts[2],
		Subject:    parts[3],
		Units:      parts[4],
		UploadedAt: time.Now().UTC(),
	}
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") || !uc.isIndexed(e.Name()) {
			continue
		}
		material.Files = append(material.Files, entities.MaterialFile{FileName: rel + "/" + e.Name()})
	}
	if len(material.Files) == 0 {
		return nil, nil
	}

	if err := uc.catalog.AddMaterial(ctx, material); err != nil {
		return nil, fmt.Errorf("registering %s: %w", rel, err)
	}
	return material, nil
}

// Find lists catalog materials matching q.
func (uc *CatalogUseCase) Find(ctx context.Context, q entities.MaterialQuery) ([]entities.CourseMaterial, error) {
	materials, err := uc.catalog.FindMaterials(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", entities.ErrMaterialLookupFailed, err)
	}
	return materials, nil
}

// UploadFile is one file received for a material upload.
type UploadFile struct {
	Name    string
	Content io.Reader
}

// Upload stores files under the unit directory described by meta and
// re-registers that unit. Files already in the directory stay part of it.
func (uc *CatalogUseCase) Upload(ctx context.Context, meta entities.CourseMaterial, files []UploadFile) (*entities.CourseMaterial, error) {
	segments := []string{meta.Regulation, meta.Year, meta.Semester, meta.Subject, meta.Units}
	for i, seg := range segments {
		segments[i] = strings.TrimSpace(seg)
		if !validSegment(segments[i]) {
			return nil, fmt.Errorf("%w: year, semester, regulation, subject and units are required and must not contain path separators", entities.ErrInvalidRequest)
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: at least one file is required", entities.ErrInvalidRequest)
	}
	for _, f := range files {
		if !validSegment(f.Name) || !uc.isIndexed(f.Name) {
			return nil, fmt.Errorf("%w: unsupported file %q (allowed: %s)", entities.ErrInvalidRequest, f.Name, strings.Join(uc.extensions, ", "))
		}
	}

	dir := filepath.Join(append([]string{uc.root}, segments...)...)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}
	for _, f := range files {
		if err := writeFile(filepath.Join(dir, f.Name), f.Content); err != nil {
			return nil, err
		}
	}

	material, err := uc.indexUnit(ctx, dir)
	if err != nil {
		return nil, err
	}
	if material == nil {
		return nil, entities.ErrNoMaterialFound
	}

	log.Printf("[OK] Uploaded %d files to %s", len(files), filepath.ToSlash(dir))
	return material, nil
}

func writeFile(path string, content io.Reader) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Base(path), err)
	}
	if _, err := io.Copy(out, content); err != nil {
		out.Close()
		os.Remove(path)
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	return out.Close()
}

func validSegment(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.HasPrefix(s, ".") && !strings.ContainsAny(s, `/\`)
}

func (uc *CatalogUseCase) relative(path string) (string, error) {
	rel, err := filepath.Rel(uc.root, path)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", path, err)
	}
	return filepath.ToSlash(rel), nil
}

func (uc *CatalogUseCase) isUnitDir(dir string) bool {
	rel, err := uc.relative(dir)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return false
	}
	return len(strings.Split(rel, "/")) == unitDepth
}

func (uc *CatalogUseCase) isIndexed(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range uc.extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// generateMaterialID creates a deterministic ID for a unit directory.
func generateMaterialID(rel string) string {
	hash := sha256.Sum256([]byte(rel))
	return hex.EncodeToString(hash[:8])
}
