package gallery

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

type Repository interface {
	CreateStrip(ctx context.Context, strip *Strip) error
	GetStrip(ctx context.Context, id string) (*Strip, error)
	GetStripByStoragePath(ctx context.Context, path string) (*Strip, error)
	ListStripsByUser(ctx context.Context, userID, status string) ([]*Strip, error)
	ListPreviewsBefore(ctx context.Context, before time.Time) ([]*Strip, error)
	UpdateStripStatus(ctx context.Context, id, status string) error
	MarkStripStored(ctx context.Context, id, userID, storagePath, url string) error
	DeleteStrip(ctx context.Context, id string) error

	CreatePhotoSet(ctx context.Context, set *PhotoSet) error
	GetPhotoSet(ctx context.Context, id string) (*PhotoSet, error)
	ListPhotoSetsByUser(ctx context.Context, userID string) ([]*PhotoSet, error)
	DeletePhotoSet(ctx context.Context, id string) error

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const stripColumns = `id, user_id, status, frame_count, width, height, local_path, storage_path, url, created_at, updated_at`

func (r *SQLiteRepository) CreateStrip(ctx context.Context, s *Strip) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO strips (`+stripColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ID, nullString(s.UserID), s.Status, s.FrameCount, s.Width, s.Height,
		nullString(s.LocalPath), nullString(s.StoragePath), nullString(s.URL),
		s.CreatedAt.UTC().Format(time.RFC3339), s.UpdatedAt.UTC().Format(time.RFC3339))
	return err
}

func (r *SQLiteRepository) GetStrip(ctx context.Context, id string) (*Strip, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+stripColumns+` FROM strips WHERE id = ?`, id)
	return scanStrip(row)
}

func (r *SQLiteRepository) GetStripByStoragePath(ctx context.Context, path string) (*Strip, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+stripColumns+` FROM strips WHERE storage_path = ?`, path)
	return scanStrip(row)
}

func (r *SQLiteRepository) ListStripsByUser(ctx context.Context, userID, status string) ([]*Strip, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+stripColumns+`
		FROM strips WHERE user_id = ? AND status = ? ORDER BY created_at DESC
	`, userID, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectStrips(rows)
}

func (r *SQLiteRepository) ListPreviewsBefore(ctx context.Context, before time.Time) ([]*Strip, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+stripColumns+`
		FROM strips WHERE status = ? AND created_at < ? ORDER BY created_at
	`, StatusPreview, before.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectStrips(rows)
}

func (r *SQLiteRepository) UpdateStripStatus(ctx context.Context, id, status string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE strips SET status = ?, updated_at = ? WHERE id = ?
	`, status, time.Now().UTC().Format(time.RFC3339), id)
	return err
}

func (r *SQLiteRepository) MarkStripStored(ctx context.Context, id, userID, storagePath, url string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE strips
		SET status = ?, user_id = ?, storage_path = ?, url = ?, local_path = NULL, updated_at = ?
		WHERE id = ?
	`, StatusStored, userID, storagePath, url, time.Now().UTC().Format(time.RFC3339), id)
	return err
}

func (r *SQLiteRepository) DeleteStrip(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM strips WHERE id = ?", id)
	return err
}

func (r *SQLiteRepository) CreatePhotoSet(ctx context.Context, p *PhotoSet) error {
	photos, err := json.Marshal(p.Photos)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO photo_sets (id, user_id, photos, filter_type, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, p.ID, p.UserID, string(photos), p.FilterType, p.CreatedAt.UTC().Format(time.RFC3339))
	return err
}

func (r *SQLiteRepository) GetPhotoSet(ctx context.Context, id string) (*PhotoSet, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, photos, filter_type, created_at FROM photo_sets WHERE id = ?
	`, id)

	p, err := scanPhotoSet(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

func (r *SQLiteRepository) ListPhotoSetsByUser(ctx context.Context, userID string) ([]*PhotoSet, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, photos, filter_type, created_at
		FROM photo_sets WHERE user_id = ? ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sets []*PhotoSet
	for rows.Next() {
		p, err := scanPhotoSet(rows.Scan)
		if err != nil {
			return nil, err
		}
		sets = append(sets, p)
	}
	return sets, rows.Err()
}

func (r *SQLiteRepository) DeletePhotoSet(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM photo_sets WHERE id = ?", id)
	return err
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

func scanStrip(row *sql.Row) (*Strip, error) {
	s, err := scanStripFields(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return s, err
}

func collectStrips(rows *sql.Rows) ([]*Strip, error) {
	var strips []*Strip
	for rows.Next() {
		s, err := scanStripFields(rows.Scan)
		if err != nil {
			return nil, err
		}
		strips = append(strips, s)
	}
	return strips, rows.Err()
}

func scanStripFields(scan func(dest ...any) error) (*Strip, error) {
	var s Strip
	var userID, localPath, storagePath, url sql.NullString
	var createdAt, updatedAt string

	err := scan(&s.ID, &userID, &s.Status, &s.FrameCount, &s.Width, &s.Height,
		&localPath, &storagePath, &url, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	s.UserID = userID.String
	s.LocalPath = localPath.String
	s.StoragePath = storagePath.String
	s.URL = url.String
	s.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	s.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &s, nil
}

func scanPhotoSet(scan func(dest ...any) error) (*PhotoSet, error) {
	var p PhotoSet
	var photos, createdAt string
	if err := scan(&p.ID, &p.UserID, &photos, &p.FilterType, &createdAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(photos), &p.Photos); err != nil {
		return nil, err
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &p, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
