package marker

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"pinpoint/internal/app/models"
)

// DB is the narrow pgx surface the repository needs. *pgxpool.Pool satisfies
// it, and so does pgxmock.PgxPoolIface in tests.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ Repository = (*PostgresRepository)(nil)

// Repository is the durable marker store. Implementations must keep the like
// set a genuine set: AppendLike is idempotent and loses no updates under
// concurrency, and queries never observe torn marker records.
type Repository interface {
	Insert(ctx context.Context, m *models.Marker) error
	Get(ctx context.Context, id string) (*models.Marker, error)
	// AppendLike adds accountID to the like set; reports whether the set grew.
	AppendLike(ctx context.Context, id, accountID string) (bool, error)
	// RemoveLike removes accountID from the like set; reports whether it shrank.
	RemoveLike(ctx context.Context, id, accountID string) (bool, error)
	// QueryNear returns non-expired markers within radiusKm of the coordinate,
	// oldest first.
	QueryNear(ctx context.Context, lat, lon, radiusKm float64, now time.Time) ([]models.Marker, error)
	// ListByAuthor returns the author's non-expired markers, oldest first.
	ListByAuthor(ctx context.Context, authorID string, now time.Time) ([]models.Marker, error)
	Delete(ctx context.Context, id string) error
	// PurgeExpired removes logically expired markers and their likes.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
	CountActive(ctx context.Context, now time.Time) (int64, error)
}

type PostgresRepository struct {
	logger *zap.Logger
	db     DB
	sb     sq.StatementBuilderType
}

func NewPostgresRepository(db DB, logger *zap.Logger) *PostgresRepository {
	return &PostgresRepository{
		logger: logger,
		db:     db,
		sb:     sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// markerSelect joins the like set in as a text array so a marker row is read
// in one statement (no torn records under a concurrent purge).
const markerSelect = `
SELECT m.id::text, m.author_id, m.author, m.longitude, m.latitude, m.category,
       m.title, m.description, m.picture, m.created_at, m.expires_at,
       COALESCE(array_agg(l.account_id) FILTER (WHERE l.account_id IS NOT NULL), '{}') AS likes
FROM markers m
LEFT JOIN marker_likes l ON l.marker_id = m.id
`

func scanMarker(row pgx.Row) (*models.Marker, error) {
	var m models.Marker
	err := row.Scan(&m.ID, &m.AuthorID, &m.Author, &m.Longitude, &m.Latitude,
		&m.Category, &m.Title, &m.Description, &m.Picture, &m.CreatedAt,
		&m.ExpiresAt, &m.Likes)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *PostgresRepository) collect(rows pgx.Rows) ([]models.Marker, error) {
	defer rows.Close()
	var markers []models.Marker
	for rows.Next() {
		m, err := scanMarker(rows)
		if err != nil {
			return nil, fmt.Errorf("database error scanning marker: %w", models.ErrStorageUnavailable)
		}
		markers = append(markers, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("database error reading markers: %w", models.ErrStorageUnavailable)
	}
	return markers, nil
}

func (r *PostgresRepository) Insert(ctx context.Context, m *models.Marker) error {
	query, args, err := r.sb.Insert("markers").
		Columns("id", "author_id", "author", "longitude", "latitude", "category",
			"title", "description", "picture", "created_at", "expires_at").
		Values(m.ID, m.AuthorID, m.Author, m.Longitude, m.Latitude, m.Category,
			m.Title, m.Description, m.Picture, m.CreatedAt, m.ExpiresAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert: %w", err)
	}
	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		r.logger.Error("Error inserting marker", zap.Error(err), zap.String("markerID", m.ID))
		return fmt.Errorf("database error inserting marker: %w", models.ErrStorageUnavailable)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Marker, error) {
	query := markerSelect + `WHERE m.id::text = $1 GROUP BY m.id`
	m, err := scanMarker(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("marker %s not found: %w", id, models.ErrNotFound)
		}
		r.logger.Error("Error fetching marker", zap.Error(err), zap.String("markerID", id))
		return nil, fmt.Errorf("database error fetching marker: %w", models.ErrStorageUnavailable)
	}
	return m, nil
}

// AppendLike relies on the primary key so two concurrent likes by the same
// account collapse into one row.
func (r *PostgresRepository) AppendLike(ctx context.Context, id, accountID string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO marker_likes (marker_id, account_id) VALUES ($1::uuid, $2) ON CONFLICT DO NOTHING`,
		id, accountID)
	if err != nil {
		r.logger.Error("Error appending like", zap.Error(err), zap.String("markerID", id))
		return false, fmt.Errorf("database error appending like: %w", models.ErrStorageUnavailable)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PostgresRepository) RemoveLike(ctx context.Context, id, accountID string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM marker_likes WHERE marker_id = $1::uuid AND account_id = $2`,
		id, accountID)
	if err != nil {
		r.logger.Error("Error removing like", zap.Error(err), zap.String("markerID", id))
		return false, fmt.Errorf("database error removing like: %w", models.ErrStorageUnavailable)
	}
	return tag.RowsAffected() > 0, nil
}

// QueryNear filters by the Haversine great-circle distance evaluated in SQL,
// so expired rows and out-of-range rows never leave the database.
func (r *PostgresRepository) QueryNear(ctx context.Context, lat, lon, radiusKm float64, now time.Time) ([]models.Marker, error) {
	query := markerSelect + `
WHERE m.expires_at > $4
  AND 2 * 6371 * asin(sqrt(
        power(sin(radians((m.latitude - $1) / 2)), 2) +
        cos(radians($1)) * cos(radians(m.latitude)) *
        power(sin(radians((m.longitude - $2) / 2)), 2)
      )) <= $3
GROUP BY m.id
ORDER BY m.created_at`
	rows, err := r.db.Query(ctx, query, lat, lon, radiusKm, now)
	if err != nil {
		r.logger.Error("Error querying nearby markers", zap.Error(err))
		return nil, fmt.Errorf("database error querying markers: %w", models.ErrStorageUnavailable)
	}
	return r.collect(rows)
}

func (r *PostgresRepository) ListByAuthor(ctx context.Context, authorID string, now time.Time) ([]models.Marker, error) {
	query := markerSelect + `
WHERE m.author_id = $1 AND m.expires_at > $2
GROUP BY m.id
ORDER BY m.created_at`
	rows, err := r.db.Query(ctx, query, authorID, now)
	if err != nil {
		r.logger.Error("Error listing author markers", zap.Error(err), zap.String("authorID", authorID))
		return nil, fmt.Errorf("database error listing markers: %w", models.ErrStorageUnavailable)
	}
	return r.collect(rows)
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	query, args, err := r.sb.Delete("markers").Where(sq.Expr("id::text = ?", id)).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build delete: %w", err)
	}
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		r.logger.Error("Error deleting marker", zap.Error(err), zap.String("markerID", id))
		return fmt.Errorf("database error deleting marker: %w", models.ErrStorageUnavailable)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("marker %s not found: %w", id, models.ErrNotFound)
	}
	return nil
}

// PurgeExpired deletes expired markers; their like rows go with them via the
// ON DELETE CASCADE on marker_likes.
func (r *PostgresRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	query, args, err := r.sb.Delete("markers").Where(sq.LtOrEq{"expires_at": now}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build purge: %w", err)
	}
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		r.logger.Error("Error purging expired markers", zap.Error(err))
		return 0, fmt.Errorf("database error purging markers: %w", models.ErrStorageUnavailable)
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresRepository) CountActive(ctx context.Context, now time.Time) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM markers WHERE expires_at > $1`, now).Scan(&count)
	if err != nil {
		r.logger.Error("Error counting active markers", zap.Error(err))
		return 0, fmt.Errorf("database error counting markers: %w", models.ErrStorageUnavailable)
	}
	return count, nil
}
