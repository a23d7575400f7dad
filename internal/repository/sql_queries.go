package repository

const clientColumns = `id::text, name, email, company, phone, telegram_username, telegram_id,
	access_code, status, last_login_at, created_at`

const InsertClientSQL = `
INSERT INTO portal_clients
    (id, name, email, company, phone, telegram_username, telegram_id, access_code, status, created_at)
VALUES
    ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`

const InsertProjectSQL = `
INSERT INTO portal_projects (id, client_id, name, status, progress, created_at)
VALUES ($1::uuid, $2::uuid, $3, $4, $5, $6)
`

const InsertMessageSQL = `
INSERT INTO portal_messages (id, client_id, sender, body, created_at)
VALUES ($1::uuid, $2::uuid, $3, $4, $5)
`

const InsertMilestoneSQL = `
INSERT INTO portal_milestones (id, project_id, title, position, completed)
VALUES ($1::uuid, $2::uuid, $3, $4, false)
`

const SelectClientByIDSQL = `SELECT ` + clientColumns + ` FROM portal_clients WHERE id = $1::uuid`

const SelectClientByAccessCodeSQL = `SELECT ` + clientColumns + ` FROM portal_clients WHERE access_code = $1`

const SelectClientByTelegramUsernameSQL = `SELECT ` + clientColumns + ` FROM portal_clients
WHERE lower(telegram_username) = lower($1)
ORDER BY created_at
LIMIT 1`

const SelectClientsSQL = `SELECT ` + clientColumns + ` FROM portal_clients ORDER BY created_at DESC`

const UpdateClientLoginSQL = `
UPDATE portal_clients
SET last_login_at = $3,
    telegram_id = COALESCE(NULLIF($2::bigint, 0), telegram_id)
WHERE id = $1::uuid
`

// LockLoginCodeUsernameSQL serializes ReplaceLoginCode per username until the transaction ends.
const LockLoginCodeUsernameSQL = `SELECT pg_advisory_xact_lock(hashtext(lower($1)))`

const DeleteStaleLoginCodesSQL = `
DELETE FROM login_codes
WHERE lower(telegram_username) = lower($1) OR expires_at <= $2
`

const InsertLoginCodeSQL = `
INSERT INTO login_codes (code, telegram_id, telegram_username, first_name, chat_id, expires_at, consumed, created_at)
VALUES ($1, $2, $3, $4, $5, $6, false, $7)
`

const ConsumeLoginCodeSQL = `
UPDATE login_codes
SET consumed = true
WHERE code = $1 AND consumed = false AND expires_at > $2
RETURNING code, telegram_id, telegram_username, first_name, chat_id, expires_at, consumed, created_at
`

const DeleteClientSessionsSQL = `DELETE FROM portal_sessions WHERE client_id = $1::uuid`

const InsertSessionSQL = `
INSERT INTO portal_sessions (token_hash, client_id, method, expires_at, created_at)
VALUES ($1, $2::uuid, $3, $4, $5)
`

const SelectSessionSQL = `
SELECT token_hash, client_id::text, method, expires_at, created_at
FROM portal_sessions
WHERE token_hash = $1
`

const DeleteSessionSQL = `DELETE FROM portal_sessions WHERE token_hash = $1`

const DeleteExpiredSessionsSQL = `DELETE FROM portal_sessions WHERE expires_at <= $1`

const SelectProjectByClientSQL = `
SELECT id::text, client_id::text, name, status, progress, created_at
FROM portal_projects
WHERE client_id = $1::uuid
ORDER BY created_at DESC
LIMIT 1
`

const SelectMilestonesSQL = `
SELECT id::text, project_id::text, title, position, completed, completed_at
FROM portal_milestones
WHERE project_id = $1::uuid
ORDER BY position
`

const SelectMessagesSQL = `
SELECT id::text, client_id::text, sender, body, created_at
FROM portal_messages
WHERE client_id = $1::uuid
ORDER BY created_at
`
