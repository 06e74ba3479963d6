package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nnminh-sam/trip-sync-microservices-sub001/internal/models"
)

// PostgresGPSPointRepository 轨迹点Repository的PostgreSQL实现
type PostgresGPSPointRepository struct {
	db *sql.DB
}

// NewPostgresGPSPointRepository 创建轨迹点Repository
func NewPostgresGPSPointRepository(db *sql.DB) *PostgresGPSPointRepository {
	return &PostgresGPSPointRepository{db: db}
}

// 确保实现了接口
var _ GPSPointRepository = (*PostgresGPSPointRepository)(nil)

const gpsPointColumns = `
	id,
	user_id,
	trip_id,
	latitude,
	longitude,
	"timestamp",
	accuracy,
	speed,
	heading,
	created_at,
	updated_at
`

// Upsert 在单个事务内按自然键 (user_id, trip_id, timestamp) 查找并合并或插入
//
// 并发首次写入竞争的处理：事务内的 SELECT ... FOR UPDATE 串行化同键更新，
// 同时 gps_points 上的唯一索引 (user_id, COALESCE(trip_id,''), "timestamp") 配合
// INSERT ... ON CONFLICT DO UPDATE 兜底，两个并发事务都未命中查找时也能收敛为一行
func (r *PostgresGPSPointRepository) Upsert(ctx context.Context, point models.NormalizedPoint) (*models.GPSPoint, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var existingID string
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM gps_points
		WHERE user_id = $1
		  AND COALESCE(trip_id, '') = COALESCE($2, '')
		  AND "timestamp" = $3
		FOR UPDATE`,
		point.UserID, point.TripID, point.Timestamp,
	).Scan(&existingID)

	now := time.Now().UTC()
	var saved models.GPSPoint

	switch {
	case err == sql.ErrNoRows:
		// 未找到：插入新行。ON CONFLICT 兜底并发首次插入竞争
		newID := uuid.New().String()
		row := tx.QueryRowContext(ctx, `
			INSERT INTO gps_points (
				id, user_id, trip_id, latitude, longitude, "timestamp",
				accuracy, speed, heading, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
			ON CONFLICT (user_id, (COALESCE(trip_id, '')), "timestamp") DO UPDATE SET
				latitude   = EXCLUDED.latitude,
				longitude  = EXCLUDED.longitude,
				accuracy   = COALESCE(EXCLUDED.accuracy, gps_points.accuracy),
				speed      = COALESCE(EXCLUDED.speed, gps_points.speed),
				heading    = COALESCE(EXCLUDED.heading, gps_points.heading),
				updated_at = EXCLUDED.updated_at
			RETURNING `+gpsPointColumns,
			newID, point.UserID, point.TripID, point.Latitude, point.Longitude,
			point.Timestamp, point.Accuracy, point.Speed, point.Heading, now,
		)
		if err := scanGPSPoint(row, &saved); err != nil {
			return nil, fmt.Errorf("failed to insert gps point: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to look up gps point: %w", err)
	default:
		// 已存在：合并新值。可选字段为空时保留旧值
		row := tx.QueryRowContext(ctx, `
			UPDATE gps_points SET
				latitude   = $2,
				longitude  = $3,
				accuracy   = COALESCE($4, accuracy),
				speed      = COALESCE($5, speed),
				heading    = COALESCE($6, heading),
				updated_at = $7
			WHERE id = $1
			RETURNING `+gpsPointColumns,
			existingID, point.Latitude, point.Longitude,
			point.Accuracy, point.Speed, point.Heading, now,
		)
		if err := scanGPSPoint(row, &saved); err != nil {
			return nil, fmt.Errorf("failed to update gps point: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit gps point upsert: %w", err)
	}

	return &saved, nil
}

// QueryPoints 按时间倒序查询轨迹点，可选时间范围
func (r *PostgresGPSPointRepository) QueryPoints(ctx context.Context, userID string, tripID *string, filters *QueryFilters) ([]models.GPSPoint, error) {
	query := `SELECT ` + gpsPointColumns + `
		FROM gps_points
		WHERE user_id = $1
		  AND COALESCE(trip_id, '') = COALESCE($2, '')`

	args := []interface{}{userID, tripID}
	argN := 3

	limit := DefaultQueryLimit
	if filters != nil {
		if filters.BeginTime != nil {
			query += fmt.Sprintf(` AND "timestamp" >= $%d`, argN)
			args = append(args, *filters.BeginTime)
			argN++
		}
		if filters.EndTime != nil {
			query += fmt.Sprintf(` AND "timestamp" <= $%d`, argN)
			args = append(args, *filters.EndTime)
			argN++
		}
		if filters.Limit > 0 {
			limit = filters.Limit
		}
	}

	query += fmt.Sprintf(` ORDER BY "timestamp" DESC LIMIT $%d`, argN)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query gps points: %w", err)
	}
	defer rows.Close()

	var points []models.GPSPoint
	for rows.Next() {
		var p models.GPSPoint
		if err := scanGPSPoint(rows, &p); err != nil {
			return nil, fmt.Errorf("failed to scan gps point: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate gps points: %w", err)
	}

	return points, nil
}

// LatestPoint 查询最近一个轨迹点
func (r *PostgresGPSPointRepository) LatestPoint(ctx context.Context, userID string, tripID *string) (*models.GPSPoint, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+gpsPointColumns+`
		FROM gps_points
		WHERE user_id = $1
		  AND COALESCE(trip_id, '') = COALESCE($2, '')
		ORDER BY "timestamp" DESC
		LIMIT 1`,
		userID, tripID,
	)

	var p models.GPSPoint
	if err := scanGPSPoint(row, &p); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query latest gps point: %w", err)
	}
	return &p, nil
}

// DeletePoints 按ID批量删除轨迹点
func (r *PostgresGPSPointRepository) DeletePoints(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := ""
	args := make([]interface{}, 0, len(ids))
	for i, id := range ids {
		if i > 0 {
			placeholders += ", "
		}
		placeholders += fmt.Sprintf("$%d", i+1)
		args = append(args, id)
	}

	result, err := r.db.ExecContext(ctx,
		`DELETE FROM gps_points WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete gps points: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read deleted row count: %w", err)
	}
	return deleted, nil
}

// rowScanner sql.Row 与 sql.Rows 的公共扫描接口
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanGPSPoint(row rowScanner, p *models.GPSPoint) error {
	var tripID sql.NullString
	var accuracy, speed, heading sql.NullFloat64

	err := row.Scan(
		&p.ID,
		&p.UserID,
		&tripID,
		&p.Latitude,
		&p.Longitude,
		&p.Timestamp,
		&accuracy,
		&speed,
		&heading,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return err
	}

	if tripID.Valid {
		p.TripID = &tripID.String
	}
	if accuracy.Valid {
		p.Accuracy = &accuracy.Float64
	}
	if speed.Valid {
		p.Speed = &speed.Float64
	}
	if heading.Valid {
		p.Heading = &heading.Float64
	}
	return nil
}
