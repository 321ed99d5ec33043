package marker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"pinpoint/internal/app/models"
	"pinpoint/internal/app/observability/metrics"
	"pinpoint/internal/pkg/config"
	"pinpoint/internal/pkg/geo"
)

// Ensure implementation satisfies the interface
var _ Service = (*ServiceImpl)(nil)

// Accounts is the slice of the account service the marker domain needs:
// author display names and point awards.
type Accounts interface {
	GetAccount(ctx context.Context, token string) (*models.Account, error)
	AdjustPoints(ctx context.Context, id string, delta int64) error
}

// CreateInput carries the client-supplied marker fields.
type CreateInput struct {
	Longitude   float64 `json:"longitude"`
	Latitude    float64 `json:"latitude"`
	Category    string  `json:"category"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Picture     string  `json:"picture"`
}

// Record is a marker as transmitted to the client. Likes travel as a
// JSON-encoded array string (the client parses it), timestamps are RFC3339
// and distance is in miles (the client renders feet as round(miles*5280)).
type Record struct {
	ID          string  `json:"id"`
	Longitude   float64 `json:"longitude"`
	Latitude    float64 `json:"latitude"`
	Picture     string  `json:"picture"`
	Title       string  `json:"title"`
	Author      string  `json:"author"`
	Category    string  `json:"category"`
	Description string  `json:"description"`
	Likes       string  `json:"likes"`
	LikeCount   int     `json:"like_count"`
	HasLiked    bool    `json:"has_liked"`
	Created     string  `json:"created"`
	Expires     string  `json:"expires"`
	Distance    float64 `json:"distance"`
}

// LikeState is the updated like state returned by like/unlike.
type LikeState struct {
	MarkerID  string `json:"marker_id"`
	Likes     string `json:"likes"`
	LikeCount int    `json:"like_count"`
	HasLiked  bool   `json:"has_liked"`
}

// Service is the marker lifecycle manager plus the proximity query engine.
type Service interface {
	Create(ctx context.Context, sess models.Session, in CreateInput) (*Record, error)
	// Nearby returns all non-expired markers within the configured radius of
	// the coordinate, annotated with distance and like state for the caller.
	Nearby(ctx context.Context, sess models.Session, lat, lon float64) ([]Record, error)
	Like(ctx context.Context, sess models.Session, markerID string) (*LikeState, error)
	Unlike(ctx context.Context, sess models.Session, markerID string) (*LikeState, error)
	// OwnMarkers returns the caller's non-expired markers.
	OwnMarkers(ctx context.Context, sess models.Session) ([]Record, error)
	// Remove deletes a marker; only the author may remove it.
	Remove(ctx context.Context, sess models.Session, markerID string) error
	PurgeExpired(ctx context.Context) (int64, error)
	CountActive(ctx context.Context) (int64, error)
}

type ServiceImpl struct {
	logger   *zap.Logger
	repo     Repository
	accounts Accounts
	cfg      config.MarkersConfig
	now      func() time.Time
}

func NewService(repo Repository, accounts Accounts, cfg config.MarkersConfig, logger *zap.Logger) *ServiceImpl {
	return &ServiceImpl{
		logger:   logger,
		repo:     repo,
		accounts: accounts,
		cfg:      cfg,
		now:      time.Now,
	}
}

func (s *ServiceImpl) Create(ctx context.Context, sess models.Session, in CreateInput) (*Record, error) {
	l := s.logger.With(zap.String("method", "Create"), zap.String("accountID", sess.AccountID))

	tracer := otel.Tracer("pinpoint")
	ctx, span := tracer.Start(ctx, "MarkerService.Create")
	span.SetAttributes(attribute.String("marker.category", in.Category))
	defer span.End()

	if !geo.ValidCoordinate(in.Latitude, in.Longitude) {
		return nil, fmt.Errorf("marker coordinate (%f, %f): %w", in.Latitude, in.Longitude, models.ErrInvalidCoordinate)
	}
	category := models.Category(in.Category)
	if !category.Valid() {
		return nil, fmt.Errorf("category %q: %w", in.Category, models.ErrInvalidCategory)
	}
	if in.Title == "" {
		return nil, fmt.Errorf("marker title is required: %w", models.ErrBadRequest)
	}

	author := models.GuestName
	if !sess.IsGuest {
		acct, err := s.accounts.GetAccount(ctx, sess.Token)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return nil, fmt.Errorf("author account not found: %w", models.ErrUnauthenticated)
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, "author lookup failed")
			return nil, err
		}
		author = acct.Name
	}

	createdAt := s.now()
	m := &models.Marker{
		ID:          uuid.NewString(),
		AuthorID:    sess.AccountID,
		Author:      author,
		Longitude:   in.Longitude,
		Latitude:    in.Latitude,
		Category:    category,
		Title:       in.Title,
		Description: in.Description,
		Picture:     in.Picture,
		CreatedAt:   createdAt,
		ExpiresAt:   createdAt.Add(s.cfg.TTL),
	}
	if err := s.repo.Insert(ctx, m); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return nil, err
	}

	// The point award is best effort; a ledger hiccup must not undo a
	// marker that is already visible.
	if !sess.IsGuest {
		if err := s.accounts.AdjustPoints(ctx, sess.AccountID, int64(s.cfg.PointsPerMarker)); err != nil {
			l.Warn("Failed to award creation points", zap.Error(err))
		}
	}

	metrics.Get().MarkersCreatedTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("category", in.Category)))
	l.Info("Marker created", zap.String("markerID", m.ID), zap.String("category", in.Category))

	rec := s.toRecord(m, sess.AccountID, 0)
	return &rec, nil
}

func (s *ServiceImpl) Nearby(ctx context.Context, sess models.Session, lat, lon float64) ([]Record, error) {
	tracer := otel.Tracer("pinpoint")
	ctx, span := tracer.Start(ctx, "MarkerService.Nearby")
	defer span.End()

	if !geo.ValidCoordinate(lat, lon) {
		return nil, fmt.Errorf("requester coordinate (%f, %f): %w", lat, lon, models.ErrInvalidCoordinate)
	}

	markers, err := s.repo.QueryNear(ctx, lat, lon, s.cfg.RadiusKm, s.now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, err
	}

	records := make([]Record, 0, len(markers))
	for i := range markers {
		m := &markers[i]
		distKm := geo.DistanceKm(lat, lon, m.Latitude, m.Longitude)
		records = append(records, s.toRecord(m, sess.AccountID, geo.KmToMiles(distKm)))
	}
	span.SetAttributes(attribute.Int("markers.count", len(records)))
	return records, nil
}

func (s *ServiceImpl) Like(ctx context.Context, sess models.Session, markerID string) (*LikeState, error) {
	m, err := s.repo.Get(ctx, markerID)
	if err != nil {
		return nil, err
	}
	if m.Expired(s.now()) {
		return nil, fmt.Errorf("marker %s: %w", markerID, models.ErrMarkerExpired)
	}

	grew, err := s.repo.AppendLike(ctx, markerID, sess.AccountID)
	if err != nil {
		return nil, err
	}
	if grew {
		m.Likes = append(m.Likes, sess.AccountID)
		// Award the author, unless they liked their own marker.
		if m.AuthorID != models.GuestID && m.AuthorID != sess.AccountID {
			if err := s.accounts.AdjustPoints(ctx, m.AuthorID, int64(s.cfg.PointsPerLike)); err != nil {
				s.logger.Warn("Failed to award like points",
					zap.String("authorID", m.AuthorID), zap.Error(err))
			}
		}
	}
	return s.likeState(m, sess.AccountID), nil
}

func (s *ServiceImpl) Unlike(ctx context.Context, sess models.Session, markerID string) (*LikeState, error) {
	m, err := s.repo.Get(ctx, markerID)
	if err != nil {
		return nil, err
	}
	if m.Expired(s.now()) {
		return nil, fmt.Errorf("marker %s: %w", markerID, models.ErrMarkerExpired)
	}

	shrank, err := s.repo.RemoveLike(ctx, markerID, sess.AccountID)
	if err != nil {
		return nil, err
	}
	if shrank {
		likes := m.Likes[:0]
		for _, id := range m.Likes {
			if id != sess.AccountID {
				likes = append(likes, id)
			}
		}
		m.Likes = likes
		if m.AuthorID != models.GuestID && m.AuthorID != sess.AccountID {
			if err := s.accounts.AdjustPoints(ctx, m.AuthorID, -int64(s.cfg.PointsPerLike)); err != nil {
				s.logger.Warn("Failed to revoke like points",
					zap.String("authorID", m.AuthorID), zap.Error(err))
			}
		}
	}
	return s.likeState(m, sess.AccountID), nil
}

func (s *ServiceImpl) OwnMarkers(ctx context.Context, sess models.Session) ([]Record, error) {
	if sess.IsGuest {
		return nil, fmt.Errorf("guest sessions own no markers: %w", models.ErrForbidden)
	}
	markers, err := s.repo.ListByAuthor(ctx, sess.AccountID, s.now())
	if err != nil {
		return nil, err
	}
	records := make([]Record, 0, len(markers))
	for i := range markers {
		records = append(records, s.toRecord(&markers[i], sess.AccountID, 0))
	}
	return records, nil
}

func (s *ServiceImpl) Remove(ctx context.Context, sess models.Session, markerID string) error {
	m, err := s.repo.Get(ctx, markerID)
	if err != nil {
		return err
	}
	if m.AuthorID != sess.AccountID || sess.IsGuest {
		return fmt.Errorf("only the author may remove marker %s: %w", markerID, models.ErrForbidden)
	}
	return s.repo.Delete(ctx, markerID)
}

func (s *ServiceImpl) PurgeExpired(ctx context.Context) (int64, error) {
	return s.repo.PurgeExpired(ctx, s.now())
}

func (s *ServiceImpl) CountActive(ctx context.Context) (int64, error) {
	return s.repo.CountActive(ctx, s.now())
}

func (s *ServiceImpl) likeState(m *models.Marker, accountID string) *LikeState {
	return &LikeState{
		MarkerID:  m.ID,
		Likes:     encodeLikes(m.Likes),
		LikeCount: len(m.Likes),
		HasLiked:  m.LikedBy(accountID),
	}
}

func (s *ServiceImpl) toRecord(m *models.Marker, accountID string, distanceMiles float64) Record {
	return Record{
		ID:          m.ID,
		Longitude:   m.Longitude,
		Latitude:    m.Latitude,
		Picture:     m.Picture,
		Title:       m.Title,
		Author:      m.Author,
		Category:    string(m.Category),
		Description: m.Description,
		Likes:       encodeLikes(m.Likes),
		LikeCount:   len(m.Likes),
		HasLiked:    m.LikedBy(accountID),
		Created:     m.CreatedAt.UTC().Format(time.RFC3339),
		Expires:     m.ExpiresAt.UTC().Format(time.RFC3339),
		Distance:    distanceMiles,
	}
}

func encodeLikes(likes []string) string {
	if likes == nil {
		likes = []string{}
	}
	encoded, err := json.Marshal(likes)
	if err != nil {
		return "[]"
	}
	return string(encoded)
}
