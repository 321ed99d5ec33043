package ws

import (
	"context"
	"encoding/json"
	"fmt"

	"pinpoint/internal/app/domain/marker"
	"pinpoint/internal/app/models"
)

type coordinatePayload struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
}

type loginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type markerIDPayload struct {
	MarkerID string `json:"marker_id"`
}

func decode(msg json.RawMessage, v any) error {
	if len(msg) == 0 {
		return nil
	}
	if err := json.Unmarshal(msg, v); err != nil {
		return fmt.Errorf("malformed request payload: %w", models.ErrBadRequest)
	}
	return nil
}

// encodeRecords flattens marker records into a JSON-encoded string; the
// client decodes it into its own in-memory list before use.
func encodeRecords(records []marker.Record) (string, error) {
	encoded, err := json.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("failed to encode markers: %w", err)
	}
	return string(encoded), nil
}

func (d *Dispatcher) handleReceiveMarkers(ctx context.Context, sess models.Session, msg json.RawMessage) (any, error) {
	var pos coordinatePayload
	if err := decode(msg, &pos); err != nil {
		return nil, err
	}
	records, err := d.markers.Nearby(ctx, sess, pos.Latitude, pos.Longitude)
	if err != nil {
		return nil, err
	}
	return encodeRecords(records)
}

func (d *Dispatcher) handleLoginAccount(ctx context.Context, _ models.Session, msg json.RawMessage) (any, error) {
	var creds loginPayload
	if err := decode(msg, &creds); err != nil {
		return nil, err
	}
	acct, err := d.accounts.Login(ctx, creds.Email, creds.Password)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"id":            acct.ID,
		"token":         acct.Token,
		"name":          acct.Name,
		"profile_photo": acct.ProfilePhoto,
		"points":        acct.Points,
	}, nil
}

func (d *Dispatcher) handleCreateMarker(ctx context.Context, sess models.Session, msg json.RawMessage) (any, error) {
	var in marker.CreateInput
	if err := decode(msg, &in); err != nil {
		return nil, err
	}
	return d.markers.Create(ctx, sess, in)
}

func (d *Dispatcher) handleLikeMarker(ctx context.Context, sess models.Session, msg json.RawMessage) (any, error) {
	var in markerIDPayload
	if err := decode(msg, &in); err != nil {
		return nil, err
	}
	return d.markers.Like(ctx, sess, in.MarkerID)
}

func (d *Dispatcher) handleUnlikeMarker(ctx context.Context, sess models.Session, msg json.RawMessage) (any, error) {
	var in markerIDPayload
	if err := decode(msg, &in); err != nil {
		return nil, err
	}
	return d.markers.Unlike(ctx, sess, in.MarkerID)
}

func (d *Dispatcher) handleReceiveAccountMarkers(ctx context.Context, sess models.Session, _ json.RawMessage) (any, error) {
	records, err := d.markers.OwnMarkers(ctx, sess)
	if err != nil {
		return nil, err
	}
	return encodeRecords(records)
}

func (d *Dispatcher) handleRemoveMarker(ctx context.Context, sess models.Session, msg json.RawMessage) (any, error) {
	var in markerIDPayload
	if err := decode(msg, &in); err != nil {
		return nil, err
	}
	if err := d.markers.Remove(ctx, sess, in.MarkerID); err != nil {
		return nil, err
	}
	return map[string]any{"marker_id": in.MarkerID, "removed": true}, nil
}
