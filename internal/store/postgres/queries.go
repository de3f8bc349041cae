package postgres

const queryGetAnalyticsSettings = `
SELECT app_id, endpoint, enable_logging, updated_at
FROM analytics_settings
WHERE id = 1
`

const queryUpsertAnalyticsSettings = `
INSERT INTO analytics_settings (id, app_id, endpoint, enable_logging, updated_at)
VALUES (1, $1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE
SET app_id = EXCLUDED.app_id,
    endpoint = EXCLUDED.endpoint,
    enable_logging = EXCLUDED.enable_logging,
    updated_at = EXCLUDED.updated_at
`

const queryGetConsent = `
SELECT state FROM consent_settings WHERE id = 1
`

const queryUpsertConsent = `
INSERT INTO consent_settings (id, state, updated_at)
VALUES (1, $1, $2)
ON CONFLICT (id) DO UPDATE
SET state = EXCLUDED.state,
    updated_at = EXCLUDED.updated_at
`

const queryInsertSpooledBatch = `
INSERT INTO event_spool (id, events, attempts, last_status, last_error, spooled_at)
VALUES ($1, $2, $3, $4, $5, $6)
`

const queryGetUndeliveredBatches = `
SELECT id, events, attempts, last_status, last_error, spooled_at
FROM event_spool
WHERE delivered_at IS NULL
  AND spooled_at < $1
ORDER BY spooled_at ASC
LIMIT $2
`

const queryMarkBatchDelivered = `
UPDATE event_spool
SET delivered_at = $1
WHERE id = $2
  AND delivered_at IS NULL
`

const queryGetBatchDelivered = `
SELECT delivered_at IS NOT NULL FROM event_spool WHERE id = $1
`

const queryRecordBatchAttempt = `
UPDATE event_spool
SET attempts = attempts + 1,
    last_status = $1,
    last_error = $2
WHERE id = $3
  AND delivered_at IS NULL
`

const queryDeleteBatch = `
DELETE FROM event_spool WHERE id = $1
`

const queryPurgeUndelivered = `
DELETE FROM event_spool WHERE delivered_at IS NULL
`

const queryCountUndelivered = `
SELECT COUNT(*) FROM event_spool WHERE delivered_at IS NULL
`

const queryPurgeDelivered = `
DELETE FROM event_spool
WHERE delivered_at IS NOT NULL
  AND delivered_at < $1
`
