package ws

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"pinpoint/internal/app/domain/account"
	"pinpoint/internal/app/domain/marker"
	"pinpoint/internal/app/models"
	"pinpoint/internal/app/observability/metrics"
)

// requestTimeout bounds validator and storage work for one request so a slow
// backend cannot hold a connection's resources indefinitely.
const requestTimeout = 5 * time.Second

// HandlerFunc executes one named operation and returns the success payload.
type HandlerFunc func(ctx context.Context, sess models.Session, msg json.RawMessage) (any, error)

type operation struct {
	handler   HandlerFunc
	authorize bool
}

// Dispatcher routes inbound envelopes to handlers and sends exactly one
// correlated response per request. Unknown operation names get no response
// at all: the client registers a one-shot listener per request, and a frame
// nobody listens for would leak into the next exchange.
type Dispatcher struct {
	logger   *zap.Logger
	accounts account.Service
	markers  marker.Service
	ops      map[string]operation
}

func NewDispatcher(accounts account.Service, markers marker.Service, logger *zap.Logger) *Dispatcher {
	d := &Dispatcher{
		logger:   logger,
		accounts: accounts,
		markers:  markers,
		ops:      make(map[string]operation),
	}
	d.register("receiveMarkers", d.handleReceiveMarkers, true)
	d.register("loginAccount", d.handleLoginAccount, false)
	d.register("createMarker", d.handleCreateMarker, true)
	d.register("likeMarker", d.handleLikeMarker, true)
	d.register("unlikeMarker", d.handleUnlikeMarker, true)
	d.register("receiveAccountMarkers", d.handleReceiveAccountMarkers, true)
	d.register("removeMarker", d.handleRemoveMarker, true)
	return d
}

func (d *Dispatcher) register(name string, fn HandlerFunc, authorize bool) {
	d.ops[name] = operation{handler: fn, authorize: authorize}
}

// Dispatch handles one inbound frame. Every failure path ends in a
// {success:false} response; nothing here may break the session's read loop.
func (d *Dispatcher) Dispatch(ctx context.Context, s *Session, raw []byte) {
	start := time.Now()

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		d.logger.Warn("Discarding malformed frame", zap.String("sessionID", s.ID()), zap.Error(err))
		return
	}

	op, ok := d.ops[env.Name]
	if !ok {
		d.logger.Warn("Unknown operation",
			zap.String("sessionID", s.ID()), zap.String("name", env.Name))
		d.record(ctx, env.Name, false, start)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	sess := models.NewSession(string(env.ID), string(env.Token))

	if op.authorize {
		valid, err := d.accounts.IsAccountIDValid(ctx, sess.AccountID, sess.Token)
		if err != nil {
			d.logger.Error("Credential validation failed",
				zap.String("sessionID", s.ID()), zap.String("name", env.Name), zap.Error(err))
			s.Emit(Response{Name: env.Name, Handle: env.Handle, Message: userMessage(err)})
			d.record(ctx, env.Name, false, start)
			return
		}
		if !valid {
			s.Emit(Response{Name: env.Name, Handle: env.Handle,
				Message: userMessage(models.ErrUnauthenticated)})
			d.record(ctx, env.Name, false, start)
			return
		}
	}

	result, err := op.handler(ctx, sess, env.Message)
	if err != nil {
		d.logger.Warn("Request failed",
			zap.String("sessionID", s.ID()), zap.String("name", env.Name), zap.Error(err))
		s.Emit(Response{Name: env.Name, Handle: env.Handle, Message: failureMessage(env.Name, err)})
		d.record(ctx, env.Name, false, start)
		return
	}

	s.Emit(Response{Name: env.Name, Handle: env.Handle, Success: true, Message: result})
	d.record(ctx, env.Name, true, start)
}

func (d *Dispatcher) record(ctx context.Context, name string, success bool, start time.Time) {
	attrs := metric.WithAttributes(
		attribute.String("operation", name),
		attribute.Bool("success", success),
	)
	metrics.Get().DispatchesTotal.Add(ctx, 1, attrs)
	metrics.Get().DispatchDuration.Record(ctx, time.Since(start).Seconds(), attrs)
}

// failureMessage builds the failure payload for an operation. Login failures
// flag both fields so the client marks email and password together.
func failureMessage(name string, err error) any {
	if name == "loginAccount" && errors.Is(err, models.ErrUnauthenticated) {
		const invalid = "Incorrect email or password."
		return map[string]string{"email": invalid, "password": invalid}
	}
	return userMessage(err)
}

// userMessage maps a domain error to a user-displayable description.
func userMessage(err error) string {
	switch {
	case errors.Is(err, models.ErrInvalidCoordinate):
		return "Your location could not be determined."
	case errors.Is(err, models.ErrInvalidCategory):
		return "That ping category does not exist."
	case errors.Is(err, models.ErrMarkerExpired):
		return "This ping has expired."
	case errors.Is(err, models.ErrForbidden):
		return "You are not allowed to do that."
	case errors.Is(err, models.ErrNotFound):
		return "That ping could not be found."
	case errors.Is(err, models.ErrUnauthenticated):
		return "Your account credentials are invalid."
	case errors.Is(err, models.ErrBadRequest):
		return "The request could not be understood."
	default:
		return "A database error has occurred."
	}
}
