// Package confirm stores pending ad set changes until a human approves or
// rejects them. Every proposal gets its own record, so concurrent proposals
// never invalidate each other.
package confirm

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"adte.com/adte/adset-agent/internal/gen/db"
	"github.com/google/uuid"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApplying Status = "applying"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusFailed   Status = "failed"
	StatusExpired  Status = "expired"
)

var (
	ErrNotFound   = errors.New("confirmation not found")
	ErrNotPending = errors.New("confirmation is no longer pending")
)

// Record is the public view of a confirmation. The access token never leaves
// the store.
type Record struct {
	ID         string         `json:"confirmation_id"`
	AdSetID    string         `json:"adset_id"`
	Changes    map[string]any `json:"proposed_changes"`
	Current    any            `json:"current_details,omitempty"`
	Status     Status         `json:"status"`
	Approved   bool           `json:"approved"`
	Result     any            `json:"result,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	ExpiresAt  time.Time      `json:"expires_at"`
	ResolvedAt *time.Time     `json:"resolved_at,omitempty"`
}

// Mutator performs the confirmed write against the ad platform.
type Mutator interface {
	Post(ctx context.Context, endpoint, token string, params map[string]any) (map[string]any, error)
}

type Service struct {
	queries      *db.Queries
	mutator      Mutator
	ttl          time.Duration
	applyTimeout time.Duration
	logger       *slog.Logger
	now          func() time.Time
	newID        func() string
}

func NewService(queries *db.Queries, mutator Mutator, ttl time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Service{
		queries:      queries,
		mutator:      mutator,
		ttl:          ttl,
		applyTimeout: 30 * time.Second,
		logger:       logger,
		now:          time.Now,
		newID:        uuid.NewString,
	}
}

// Create stores a new pending confirmation for adsetID. current is the ad
// set as read before the proposal and may be nil.
func (s *Service) Create(ctx context.Context, adsetID, token string, current any, changes map[string]any) (*Record, error) {
	changesJSON, err := json.Marshal(changes)
	if err != nil {
		return nil, fmt.Errorf("encode changes: %w", err)
	}
	var currentJSON sql.NullString
	if current != nil {
		raw, err := json.Marshal(current)
		if err != nil {
			return nil, fmt.Errorf("encode current details: %w", err)
		}
		currentJSON = sql.NullString{String: string(raw), Valid: true}
	}

	now := s.now().UTC()
	params := db.CreateConfirmationParams{
		ID:          s.newID(),
		AdsetID:     adsetID,
		AccessToken: token,
		ChangesJson: string(changesJSON),
		CurrentJson: currentJSON,
		CreatedAt:   now.Unix(),
		ExpiresAt:   now.Add(s.ttl).Unix(),
	}
	if err := s.queries.CreateConfirmation(ctx, params); err != nil {
		return nil, fmt.Errorf("create confirmation: %w", err)
	}

	s.logger.Info("confirmation created", "confirmation_id", params.ID, "adset_id", adsetID)
	return &Record{
		ID:        params.ID,
		AdSetID:   adsetID,
		Changes:   changes,
		Current:   current,
		Status:    StatusPending,
		CreatedAt: time.Unix(params.CreatedAt, 0).UTC(),
		ExpiresAt: time.Unix(params.ExpiresAt, 0).UTC(),
	}, nil
}

// Get returns the confirmation. Pending records past their expiry are
// reported as expired even before the sweeper has run.
func (s *Service) Get(ctx context.Context, id string) (*Record, error) {
	row, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.toRecord(row)
}

// Approve claims a pending confirmation and applies its changes. A record
// that is not pending is returned together with ErrNotPending and no write
// is attempted.
func (s *Service) Approve(ctx context.Context, id string) (*Record, error) {
	res, err := s.queries.ClaimConfirmation(ctx, db.ClaimConfirmationParams{
		ID:        id,
		ExpiresAt: s.now().Unix(),
	})
	if err != nil {
		return nil, fmt.Errorf("claim confirmation: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("claim confirmation: %w", err)
	} else if n == 0 {
		return s.notPending(ctx, id)
	}

	// The claim is held from here on. Every exit must resolve the record,
	// even if the browser goes away mid-request.
	applyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.applyTimeout)
	defer cancel()

	row, err := s.load(applyCtx, id)
	if err != nil {
		return nil, s.abandon(applyCtx, id, err)
	}
	changes, err := decodeChanges(row.ChangesJson)
	if err != nil {
		return nil, s.abandon(applyCtx, id, err)
	}

	status := StatusApproved
	var result any
	out, applyErr := s.mutator.Post(applyCtx, row.AdsetID, row.AccessToken, changes)
	if applyErr != nil {
		status = StatusFailed
		result = errorPayload(applyErr)
		s.logger.Error("ad set update failed", "confirmation_id", id, "adset_id", row.AdsetID, "error", applyErr)
	} else {
		result = out
		s.logger.Info("ad set update applied", "confirmation_id", id, "adset_id", row.AdsetID)
	}

	if err := s.resolve(applyCtx, id, status, result); err != nil {
		return nil, s.abandon(applyCtx, id, err)
	}
	return s.Get(ctx, id)
}

// abandon marks a claimed confirmation as failed after cause interrupted it
// and returns cause.
func (s *Service) abandon(ctx context.Context, id string, cause error) error {
	s.logger.Error("confirmation abandoned", "confirmation_id", id, "error", cause)
	if err := s.resolve(ctx, id, StatusFailed, errorPayload(cause)); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

// Reject marks a pending confirmation as rejected.
func (s *Service) Reject(ctx context.Context, id string) (*Record, error) {
	now := s.now().Unix()
	res, err := s.queries.RejectConfirmation(ctx, db.RejectConfirmationParams{
		ResolvedAt: sql.NullInt64{Int64: now, Valid: true},
		ID:         id,
		ExpiresAt:  now,
	})
	if err != nil {
		return nil, fmt.Errorf("reject confirmation: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("reject confirmation: %w", err)
	} else if n == 0 {
		return s.notPending(ctx, id)
	}

	s.logger.Info("confirmation rejected", "confirmation_id", id)
	return s.Get(ctx, id)
}

// ExpireStale flips every pending record past its expiry to expired.
func (s *Service) ExpireStale(ctx context.Context) (int64, error) {
	now := s.now().Unix()
	res, err := s.queries.ExpireConfirmations(ctx, db.ExpireConfirmationsParams{
		ResolvedAt: sql.NullInt64{Int64: now, Valid: true},
		ExpiresAt:  now,
	})
	if err != nil {
		return 0, fmt.Errorf("expire confirmations: %w", err)
	}
	return res.RowsAffected()
}

// RunSweeper calls ExpireStale every interval until ctx is done.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.ExpireStale(ctx)
			if err != nil {
				s.logger.Error("confirmation sweep failed", "error", err)
				continue
			}
			if n > 0 {
				s.logger.Debug("confirmations expired", "count", n)
			}
		}
	}
}

func (s *Service) notPending(ctx context.Context, id string) (*Record, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return rec, ErrNotPending
}

func (s *Service) load(ctx context.Context, id string) (db.Confirmation, error) {
	row, err := s.queries.GetConfirmation(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return db.Confirmation{}, ErrNotFound
	}
	if err != nil {
		return db.Confirmation{}, fmt.Errorf("get confirmation: %w", err)
	}
	return row, nil
}

func (s *Service) resolve(ctx context.Context, id string, status Status, result any) error {
	var resultJSON sql.NullString
	if result != nil {
		raw, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		resultJSON = sql.NullString{String: string(raw), Valid: true}
	}
	_, err := s.queries.ResolveConfirmation(ctx, db.ResolveConfirmationParams{
		Status:     string(status),
		ResultJson: resultJSON,
		ResolvedAt: sql.NullInt64{Int64: s.now().Unix(), Valid: true},
		ID:         id,
	})
	if err != nil {
		return fmt.Errorf("resolve confirmation: %w", err)
	}
	return nil
}

func (s *Service) toRecord(row db.Confirmation) (*Record, error) {
	changes, err := decodeChanges(row.ChangesJson)
	if err != nil {
		return nil, err
	}
	rec := &Record{
		ID:        row.ID,
		AdSetID:   row.AdsetID,
		Changes:   changes,
		Status:    Status(row.Status),
		CreatedAt: time.Unix(row.CreatedAt, 0).UTC(),
		ExpiresAt: time.Unix(row.ExpiresAt, 0).UTC(),
	}
	if rec.Status == StatusPending && row.ExpiresAt <= s.now().Unix() {
		rec.Status = StatusExpired
	}
	rec.Approved = rec.Status == StatusApproved
	if row.CurrentJson.Valid {
		current, err := decodeJSON(row.CurrentJson.String)
		if err != nil {
			return nil, err
		}
		rec.Current = current
	}
	if row.ResultJson.Valid {
		result, err := decodeJSON(row.ResultJson.String)
		if err != nil {
			return nil, err
		}
		rec.Result = result
	}
	if row.ResolvedAt.Valid {
		t := time.Unix(row.ResolvedAt.Int64, 0).UTC()
		rec.ResolvedAt = &t
	}
	return rec, nil
}

func decodeChanges(raw string) (map[string]any, error) {
	v, err := decodeJSON(raw)
	if err != nil {
		return nil, err
	}
	changes, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("stored changes are not an object")
	}
	return changes, nil
}

func decodeJSON(raw string) (any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode stored json: %w", err)
	}
	return v, nil
}

type payloadError interface {
	Payload() map[string]any
}

func errorPayload(err error) any {
	var pe payloadError
	if errors.As(err, &pe) {
		return pe.Payload()
	}
	return map[string]any{"error": err.Error()}
}
