package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/campusify/coursechat/internal/domain/entities"
)

// FindMaterials returns materials matching q in upload order. Empty query
// fields match everything. File URLs are resolved against the public base URL.
func (s *SQLiteStore) FindMaterials(ctx context.Context, q entities.MaterialQuery) ([]entities.CourseMaterial, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, year, semester, regulation, course, subject, units, uploaded_at FROM materials WHERE 1=1`
	var args []any
	for _, f := range []struct{ column, value string }{
		{"year", q.Year},
		{"semester", q.Semester},
		{"subject", q.Subject},
		{"units", q.Units},
	} {
		if f.value != "" {
			query += " AND " + f.column + " = ?"
			args = append(args, f.value)
		}
	}
	query += " ORDER BY uploaded_at, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying materials: %w", err)
	}

	var materials []entities.CourseMaterial
	for rows.Next() {
		var m entities.CourseMaterial
		var uploadedAt int64
		if err := rows.Scan(&m.ID, &m.Year, &m.Semester, &m.Regulation, &m.Course, &m.Subject, &m.Units, &uploadedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning material: %w", err)
		}
		m.UploadedAt = time.Unix(0, uploadedAt).UTC()
		materials = append(materials, m)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterating materials: %w", err)
	}
	rows.Close()

	for i := range materials {
		files, err := s.loadFiles(ctx, materials[i].ID)
		if err != nil {
			return nil, err
		}
		materials[i].Files = files
	}
	return materials, nil
}

func (s *SQLiteStore) loadFiles(ctx context.Context, materialID string) ([]entities.MaterialFile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT file_name, file_url FROM material_files
		WHERE material_id = ?
		ORDER BY position
	`, materialID)
	if err != nil {
		return nil, fmt.Errorf("querying files: %w", err)
	}
	defer rows.Close()

	var files []entities.MaterialFile
	for rows.Next() {
		var f entities.MaterialFile
		if err := rows.Scan(&f.FileName, &f.FileURL); err != nil {
			return nil, fmt.Errorf("scanning file: %w", err)
		}
		if f.FileURL == "" {
			f.FileURL = PublicURL(s.baseURL, f.FileName)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// AddMaterial inserts or replaces a material and its file list. A blank ID
// and zero upload time are filled in; file URLs are resolved on m.
func (s *SQLiteStore) AddMaterial(ctx context.Context, m *entities.CourseMaterial) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.UploadedAt.IsZero() {
		m.UploadedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	// Keep the original upload time when a material is re-indexed.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO materials (id, year, semester, regulation, course, subject, units, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			year = excluded.year,
			semester = excluded.semester,
			regulation = excluded.regulation,
			course = excluded.course,
			subject = excluded.subject,
			units = excluded.units
	`, m.ID, m.Year, m.Semester, m.Regulation, m.Course, m.Subject, m.Units, m.UploadedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("upserting material: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM material_files WHERE material_id = ?`, m.ID); err != nil {
		return fmt.Errorf("clearing files: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO material_files (material_id, position, file_name, file_url)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for i := range m.Files {
		f := &m.Files[i]
		if _, err := stmt.ExecContext(ctx, m.ID, i, f.FileName, f.FileURL); err != nil {
			return fmt.Errorf("inserting file: %w", err)
		}
		if f.FileURL == "" {
			f.FileURL = PublicURL(s.baseURL, f.FileName)
		}
	}

	return tx.Commit()
}

// RemoveFile drops every file entry named fileName and deletes materials
// left without files.
func (s *SQLiteStore) RemoveFile(ctx context.Context, fileName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM material_files WHERE file_name = ?`, fileName); err != nil {
		return fmt.Errorf("deleting file: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		DELETE FROM materials
		WHERE NOT EXISTS (SELECT 1 FROM material_files f WHERE f.material_id = materials.id)
	`)
	if err != nil {
		return fmt.Errorf("deleting empty materials: %w", err)
	}

	return tx.Commit()
}
