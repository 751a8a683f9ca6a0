// Package sqlite implements the relational store over SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/flatroom/flat-server-go/internal/core"
	"github.com/flatroom/flat-server-go/internal/storage"
	"github.com/flatroom/flat-server-go/internal/storage/sqlite/migrations"
)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Store persists users and cloud storage files.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

// Open opens the SQLite database at path and applies bundled migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := migrate(ctx, sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}

// HasUserFile reports whether userUUID owns fileUUID.
func (s *Store) HasUserFile(ctx context.Context, userUUID, fileUUID string) (bool, error) {
	var id int64
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT rowid FROM cloud_storage_user_files
WHERE user_uuid = ? AND file_uuid = ? AND is_delete = 0
LIMIT 1`, userUUID, fileUUID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query user file: %w", err)
	}
	return true, nil
}

// FindFile returns the file row for fileUUID.
func (s *Store) FindFile(ctx context.Context, fileUUID string) (*core.CloudStorageFile, error) {
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT file_uuid, file_name, file_size, file_url, convert_step, task_uuid, task_token, region, created_at, updated_at
FROM cloud_storage_files
WHERE file_uuid = ? AND is_delete = 0`, fileUUID)
	file, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query file %s: %w", fileUUID, err)
	}
	return file, nil
}

// UpdateConvertStep sets the conversion step of fileUUID.
func (s *Store) UpdateConvertStep(ctx context.Context, fileUUID string, step core.FileConvertStep) error {
	res, err := s.sqlDB.ExecContext(ctx, `
UPDATE cloud_storage_files SET convert_step = ?, updated_at = ?
WHERE file_uuid = ? AND is_delete = 0`, string(step), toMillis(s.now()), fileUUID)
	if err != nil {
		return fmt.Errorf("update convert step: %w", err)
	}
	return requireAffected(res)
}

// MarkConverting records a submitted conversion task.
func (s *Store) MarkConverting(ctx context.Context, fileUUID, taskUUID, taskToken string, region core.Region) error {
	res, err := s.sqlDB.ExecContext(ctx, `
UPDATE cloud_storage_files
SET convert_step = ?, task_uuid = ?, task_token = ?, region = ?, updated_at = ?
WHERE file_uuid = ? AND is_delete = 0`,
		string(core.ConvertStepConverting), taskUUID, taskToken, string(region), toMillis(s.now()), fileUUID)
	if err != nil {
		return fmt.Errorf("mark converting: %w", err)
	}
	return requireAffected(res)
}

// ListStaleConverting returns files still converting that were last
// touched before olderThan, oldest first.
func (s *Store) ListStaleConverting(ctx context.Context, olderThan time.Time, limit int) ([]*core.CloudStorageFile, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT file_uuid, file_name, file_size, file_url, convert_step, task_uuid, task_token, region, created_at, updated_at
FROM cloud_storage_files
WHERE convert_step = ? AND updated_at < ? AND is_delete = 0
ORDER BY updated_at ASC
LIMIT ?`, string(core.ConvertStepConverting), toMillis(olderThan), limit)
	if err != nil {
		return nil, fmt.Errorf("list converting files: %w", err)
	}
	defer rows.Close()

	var files []*core.CloudStorageFile
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

// CreateFile inserts a file row and links it to its owner.
func (s *Store) CreateFile(ctx context.Context, userUUID string, file *core.CloudStorageFile) error {
	now := s.now()
	if file.ConvertStep == "" {
		file.ConvertStep = core.ConvertStepNone
	}
	if file.Region == "" {
		file.Region = core.RegionNone
	}
	file.CreatedAt = fromMillis(toMillis(now))
	file.UpdatedAt = file.CreatedAt

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create file: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO cloud_storage_files
    (file_uuid, file_name, file_size, file_url, convert_step, task_uuid, task_token, region, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		file.FileUUID, file.FileName, file.FileSize, file.FileURL, string(file.ConvertStep),
		file.TaskUUID, file.TaskToken, string(file.Region), toMillis(now), toMillis(now),
	); err != nil {
		return fmt.Errorf("insert file: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO cloud_storage_user_files (user_uuid, file_uuid, created_at, updated_at)
VALUES (?, ?, ?, ?)`, userUUID, file.FileUUID, toMillis(now), toMillis(now)); err != nil {
		return fmt.Errorf("insert user file: %w", err)
	}
	return tx.Commit()
}

// UpsertExternalUser returns the user bound to identity, creating the
// user on first sign-in and refreshing the profile otherwise.
func (s *Store) UpsertExternalUser(ctx context.Context, identity core.ExternalIdentity) (*core.User, error) {
	if identity.Source != core.LoginSourceGithub {
		return nil, fmt.Errorf("unsupported login source %q", identity.Source)
	}
	now := toMillis(s.now())

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin upsert user: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var userUUID string
	err = tx.QueryRowContext(ctx, `
SELECT user_uuid FROM user_github WHERE union_uuid = ? AND is_delete = 0`, identity.UnionID).Scan(&userUUID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		userUUID = core.NewUUIDv4()
		if _, err := tx.ExecContext(ctx, `
INSERT INTO users (user_uuid, user_name, avatar_url, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)`, userUUID, identity.Name, identity.Avatar, now, now); err != nil {
			return nil, fmt.Errorf("insert user: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO user_github (user_uuid, union_uuid, user_name, email, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)`, userUUID, identity.UnionID, identity.Name, identity.Email, now, now); err != nil {
			return nil, fmt.Errorf("insert github user: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("query github user: %w", err)
	default:
		if _, err := tx.ExecContext(ctx, `
UPDATE users SET user_name = ?, avatar_url = ?, updated_at = ? WHERE user_uuid = ?`,
			identity.Name, identity.Avatar, now, userUUID); err != nil {
			return nil, fmt.Errorf("update user: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
UPDATE user_github SET user_name = ?, email = ?, updated_at = ? WHERE union_uuid = ?`,
			identity.Name, identity.Email, now, identity.UnionID); err != nil {
			return nil, fmt.Errorf("update github user: %w", err)
		}
	}

	user := &core.User{UserUUID: userUUID}
	var createdAt int64
	if err := tx.QueryRowContext(ctx, `
SELECT user_name, avatar_url, created_at FROM users WHERE user_uuid = ?`, userUUID).
		Scan(&user.Name, &user.Avatar, &createdAt); err != nil {
		return nil, fmt.Errorf("reload user: %w", err)
	}
	user.CreatedAt = fromMillis(createdAt)

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit upsert user: %w", err)
	}
	return user, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(row rowScanner) (*core.CloudStorageFile, error) {
	var (
		f                    core.CloudStorageFile
		step, region         string
		createdAt, updatedAt int64
	)
	if err := row.Scan(&f.FileUUID, &f.FileName, &f.FileSize, &f.FileURL, &step,
		&f.TaskUUID, &f.TaskToken, &region, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	f.ConvertStep = core.FileConvertStep(step)
	f.Region = core.Region(region)
	f.CreatedAt = fromMillis(createdAt)
	f.UpdatedAt = fromMillis(updatedAt)
	return &f, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}
