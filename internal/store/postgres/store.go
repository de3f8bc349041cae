package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/arupsarkar-sfdc/Pronto-Food-Service-Mobile-sub001/internal/api"
	"github.com/arupsarkar-sfdc/Pronto-Food-Service-Mobile-sub001/internal/datacloud"
	"github.com/arupsarkar-sfdc/Pronto-Food-Service-Mobile-sub001/internal/domain"
	"github.com/arupsarkar-sfdc/Pronto-Food-Service-Mobile-sub001/internal/reconciler"
	"github.com/arupsarkar-sfdc/Pronto-Food-Service-Mobile-sub001/internal/report"
	"github.com/arupsarkar-sfdc/Pronto-Food-Service-Mobile-sub001/internal/tracking"
)

// Store implements the settings, consent and spool persistence used by
// the tracking service, the delivery client and the reconciler, backed
// by PostgreSQL.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL store with the given database connection.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// GetAnalyticsSettings returns the persisted ingestion credentials.
// A missing row yields a zero config, not an error: the service runs
// unconfigured until an operator saves credentials.
func (s *Store) GetAnalyticsSettings(ctx context.Context) (domain.AnalyticsConfig, error) {
	var cfg domain.AnalyticsConfig

	err := s.db.QueryRowContext(ctx, queryGetAnalyticsSettings).Scan(
		&cfg.AppID,
		&cfg.Endpoint,
		&cfg.EnableLogging,
		&cfg.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return domain.AnalyticsConfig{}, nil
	}
	if err != nil {
		return domain.AnalyticsConfig{}, err
	}
	return cfg, nil
}

// UpsertAnalyticsSettings saves the ingestion credentials, replacing
// any previous row.
func (s *Store) UpsertAnalyticsSettings(ctx context.Context, cfg domain.AnalyticsConfig) error {
	_, err := s.db.ExecContext(ctx, queryUpsertAnalyticsSettings,
		cfg.AppID,
		cfg.Endpoint,
		cfg.EnableLogging,
		cfg.UpdatedAt,
	)
	return err
}

// GetConsent returns the persisted consent decision. A missing row
// yields ConsentUnknown: nobody has decided yet.
func (s *Store) GetConsent(ctx context.Context) (domain.ConsentState, error) {
	var state string

	err := s.db.QueryRowContext(ctx, queryGetConsent).Scan(&state)
	if err == sql.ErrNoRows {
		return domain.ConsentUnknown, nil
	}
	if err != nil {
		return domain.ConsentUnknown, err
	}

	parsed, err := domain.ParseConsentState(state)
	if err != nil {
		return domain.ConsentUnknown, err
	}
	return parsed, nil
}

// UpsertConsent saves the consent decision, replacing any previous row.
func (s *Store) UpsertConsent(ctx context.Context, state domain.ConsentState, updatedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, queryUpsertConsent, string(state), updatedAt)
	return err
}

// SpoolBatch journals a batch whose delivery retries were exhausted.
func (s *Store) SpoolBatch(ctx context.Context, batch domain.SpooledBatch) error {
	payload, err := encodeSpoolEvents(batch.Events)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, queryInsertSpooledBatch,
		batch.ID,
		payload,
		batch.Attempts,
		batch.LastStatus,
		batch.LastError,
		batch.SpooledAt,
	)
	return err
}

// GetUndeliveredBatches returns spooled batches older than the given
// threshold time, ordered by spooled_at ASC (oldest first) and limited
// to maxResults.
func (s *Store) GetUndeliveredBatches(ctx context.Context, olderThan time.Time, maxResults int) ([]domain.SpooledBatch, error) {
	rows, err := s.db.QueryContext(ctx, queryGetUndeliveredBatches, olderThan, maxResults)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.SpooledBatch
	for rows.Next() {
		var batch domain.SpooledBatch
		var payload []byte

		err := rows.Scan(
			&batch.ID,
			&payload,
			&batch.Attempts,
			&batch.LastStatus,
			&batch.LastError,
			&batch.SpooledAt,
		)
		if err != nil {
			return nil, err
		}
		batch.Events, err = decodeSpoolEvents(payload)
		if err != nil {
			return nil, err
		}
		result = append(result, batch)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// MarkBatchDelivered stamps a spooled batch as delivered.
// Returns reconciler.ErrAlreadyDelivered if the batch was delivered before.
// This uses an atomic UPDATE with WHERE clause to prevent TOCTOU race conditions.
func (s *Store) MarkBatchDelivered(ctx context.Context, id uuid.UUID, deliveredAt time.Time) error {
	// Single atomic update with guard in WHERE clause.
	// PostgreSQL acquires row lock before evaluating WHERE,
	// ensuring serialized access under concurrency.
	result, err := s.db.ExecContext(ctx, queryMarkBatchDelivered, deliveredAt, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		// Either: (a) batch not found, or (b) already delivered.
		// Distinguish by checking if the row exists.
		var delivered bool
		err := s.db.QueryRowContext(ctx, queryGetBatchDelivered, id).Scan(&delivered)
		if err == sql.ErrNoRows {
			return sql.ErrNoRows
		}
		if err != nil {
			return err
		}
		// Row exists but wasn't updated => delivered_at already set
		return reconciler.ErrAlreadyDelivered
	}

	return nil
}

// RecordBatchAttempt records a failed replay attempt against a spooled
// batch. Delivered batches are left untouched.
func (s *Store) RecordBatchAttempt(ctx context.Context, id uuid.UUID, statusCode int, sendError string) error {
	_, err := s.db.ExecContext(ctx, queryRecordBatchAttempt, statusCode, sendError, id)
	return err
}

// DeleteBatch removes a spooled batch outright. Used when the ingestion
// API rejects a batch as malformed: replaying it can never succeed.
func (s *Store) DeleteBatch(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, queryDeleteBatch, id)
	return err
}

// PurgeUndelivered deletes every undelivered batch and returns how many
// were removed. Called when the user opts out of analytics.
func (s *Store) PurgeUndelivered(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, queryPurgeUndelivered)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// CountUndelivered returns the number of batches waiting in the spool.
func (s *Store) CountUndelivered(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, queryCountUndelivered).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// PurgeDelivered deletes delivered batches older than the given
// threshold. Delivered rows are kept around for inspection, then reaped
// by the housekeeping job.
func (s *Store) PurgeDelivered(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, queryPurgeDelivered, olderThan)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// spoolEvent is the JSON shape events take inside the event_spool
// events column. Kept separate from the ingestion wire format so
// storage stays stable if the payload shape changes.
type spoolEvent struct {
	ID         uuid.UUID         `json:"id"`
	Name       string            `json:"name"`
	Attributes map[string]string `json:"attributes"`
	OccurredAt time.Time         `json:"occurred_at"`
}

func encodeSpoolEvents(events []domain.Event) ([]byte, error) {
	records := make([]spoolEvent, 0, len(events))
	for _, ev := range events {
		records = append(records, spoolEvent{
			ID:         ev.ID,
			Name:       ev.Name,
			Attributes: ev.Attributes,
			OccurredAt: ev.OccurredAt,
		})
	}
	return json.Marshal(records)
}

func decodeSpoolEvents(payload []byte) ([]domain.Event, error) {
	var records []spoolEvent
	if err := json.Unmarshal(payload, &records); err != nil {
		return nil, err
	}

	events := make([]domain.Event, 0, len(records))
	for _, rec := range records {
		events = append(events, domain.Event{
			ID:         rec.ID,
			Name:       rec.Name,
			Attributes: rec.Attributes,
			OccurredAt: rec.OccurredAt,
		})
	}
	return events, nil
}

// Compile-time interface assertions
var (
	_ datacloud.SpoolStore    = (*Store)(nil)
	_ reconciler.Store        = (*Store)(nil)
	_ api.Store               = (*Store)(nil)
	_ tracking.SettingsSource = (*Store)(nil)
	_ report.SpoolJanitor     = (*Store)(nil)
)
