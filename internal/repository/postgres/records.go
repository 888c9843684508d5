package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"data-chopper/internal/models/entities"
)

// RecordRepository реализует хранилище записей, поиск коллекций и их блокировку в PostgreSQL
type RecordRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewRecordRepository создает новый экземпляр PostgreSQL репозитория записей
func NewRecordRepository(db *sqlx.DB, logger *zap.Logger) *RecordRepository {
	return &RecordRepository{
		db:     db,
		logger: logger,
	}
}

// GetAllCollections возвращает все разделы
func (r *RecordRepository) GetAllCollections(ctx context.Context) ([]entities.Collection, error) {
	var collections []entities.Collection
	if err := r.db.SelectContext(ctx, &collections, `SELECT id, handle, name FROM sections ORDER BY id`); err != nil {
		return nil, fmt.Errorf("select sections: %w", err)
	}
	return collections, nil
}

// GetCollectionByHandle возвращает раздел по handle или nil
func (r *RecordRepository) GetCollectionByHandle(ctx context.Context, handle string) (*entities.Collection, error) {
	var collection entities.Collection
	err := r.db.GetContext(ctx, &collection, `SELECT id, handle, name FROM sections WHERE handle = $1`, handle)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select section %s: %w", handle, err)
	}
	return &collection, nil
}

// CountByPartition считает живые записи раздела с данным статусом
func (r *RecordRepository) CountByPartition(ctx context.Context, collectionID int64, status string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT count(*) FROM entries
		WHERE section_id = $1 AND status = $2 AND deleted_at IS NULL`,
		collectionID, status)
	if err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return count, nil
}

// DistinctStatuses возвращает статусы живых записей раздела
func (r *RecordRepository) DistinctStatuses(ctx context.Context, collectionID int64) ([]string, error) {
	var statuses []string
	err := r.db.SelectContext(ctx, &statuses, `
		SELECT DISTINCT status FROM entries
		WHERE section_id = $1 AND deleted_at IS NULL
		ORDER BY status`,
		collectionID)
	if err != nil {
		return nil, fmt.Errorf("select statuses: %w", err)
	}
	return statuses, nil
}

// IDsByPartition возвращает идентификаторы живых записей раздела с данным статусом
func (r *RecordRepository) IDsByPartition(ctx context.Context, collectionID int64, status string) ([]int64, error) {
	var ids []int64
	err := r.db.SelectContext(ctx, &ids, `
		SELECT id FROM entries
		WHERE section_id = $1 AND status = $2 AND deleted_at IS NULL`,
		collectionID, status)
	if err != nil {
		return nil, fmt.Errorf("select entry ids: %w", err)
	}
	return ids, nil
}

// FindByID возвращает живую запись или nil
func (r *RecordRepository) FindByID(ctx context.Context, id int64) (*entities.Record, error) {
	var record entities.Record
	err := r.db.GetContext(ctx, &record, `
		SELECT id, section_id, status FROM entries
		WHERE id = $1 AND deleted_at IS NULL`,
		id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select entry %d: %w", id, err)
	}
	return &record, nil
}

// Delete удаляет запись: hard - физически, иначе помечает deleted_at
func (r *RecordRepository) Delete(ctx context.Context, record *entities.Record, hard bool) (bool, error) {
	query := `UPDATE entries SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL`
	if hard {
		query = `DELETE FROM entries WHERE id = $1`
	}

	res, err := r.db.ExecContext(ctx, query, record.ID)
	if err != nil {
		return false, fmt.Errorf("delete entry %d: %w", record.ID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete entry %d: rows affected: %w", record.ID, err)
	}
	return affected > 0, nil
}

// TryAcquireLock пытается получить advisory lock для раздела.
// Блокировка сессионная, поэтому захват и освобождение идут через одно соединение.
func (r *RecordRepository) TryAcquireLock(ctx context.Context, handle string) (bool, func(), error) {
	lockID := r.generateLockID(handle)

	conn, err := r.db.Connx(ctx)
	if err != nil {
		return false, nil, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.GetContext(ctx, &acquired, "SELECT pg_try_advisory_lock($1)", lockID); err != nil {
		conn.Close()
		return false, nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	if !acquired {
		conn.Close()
		return false, nil, nil
	}

	// Возвращаем функцию для освобождения блокировки
	unlock := func() {
		defer conn.Close()

		var released bool
		if err := conn.GetContext(context.Background(), &released, "SELECT pg_advisory_unlock($1)", lockID); err != nil {
			r.logger.Error("Failed to release advisory lock",
				zap.String("section", handle),
				zap.Int64("lock_id", lockID),
				zap.Error(err))
		}
	}

	return true, unlock, nil
}

// generateLockID генерирует уникальный ID для advisory lock
func (r *RecordRepository) generateLockID(handle string) int64 {
	h := fnv.New64a()
	h.Write([]byte("sections:" + handle))
	return int64(h.Sum64())
}
