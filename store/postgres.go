package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/Abraxas-365/craftable/errx"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mygads/govconnect-channelgateway/pkg/kernel"
)

// fifoTruncateEvery matches spec.md §4.1: the FIFO check runs only every
// 5th insertion per conversation, not on every insert.
const fifoTruncateEvery = 5

// fifoMaxMessages is the per-conversation retention ceiling (spec.md §3).
const fifoMaxMessages = 30

// PostgresStore is the Store backed directly by Postgres via sqlx+lib/pq,
// following channelsinfra's NamedExecContext/pq.Error idiom.
type PostgresStore struct {
	db *sqlx.DB

	settingsMu     sync.Mutex
	cachedSettings *Settings
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ============================================================================
// Session
// ============================================================================

func (s *PostgresStore) GetSession(ctx context.Context, villageID kernel.VillageID) (*Session, error) {
	var sess Session
	query := `SELECT village_id, instance_name, admin_id, provider_token, status,
		wa_number, support_user_id, support_api_key, support_session_id, last_connected_at
		FROM sessions WHERE village_id = $1`
	if err := s.db.GetContext(ctx, &sess, query, villageID.String()); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrSessionNotFound().WithDetail("village_id", villageID.String())
		}
		return nil, errx.Wrap(err, "failed to get session", errx.TypeInternal)
	}
	return &sess, nil
}

func (s *PostgresStore) GetSessionByInstanceName(ctx context.Context, instanceName string) (*Session, error) {
	var sess Session
	query := `SELECT village_id, instance_name, admin_id, provider_token, status,
		wa_number, support_user_id, support_api_key, support_session_id, last_connected_at
		FROM sessions WHERE instance_name = $1`
	if err := s.db.GetContext(ctx, &sess, query, instanceName); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrSessionNotFound().WithDetail("instance_name", instanceName)
		}
		return nil, errx.Wrap(err, "failed to get session by instance name", errx.TypeInternal)
	}
	return &sess, nil
}

// FindConnectedSessionByNumber supports checkDuplicate (spec.md §4.6):
// a cross-tenant lookup, the one place other than force-disconnect where
// the village_id filter is intentionally absent.
func (s *PostgresStore) FindConnectedSessionByNumber(ctx context.Context, waNumber string) (*Session, error) {
	var sess Session
	query := `SELECT village_id, instance_name, admin_id, provider_token, status,
		wa_number, support_user_id, support_api_key, support_session_id, last_connected_at
		FROM sessions WHERE wa_number = $1 AND status = $2 LIMIT 1`
	err := s.db.GetContext(ctx, &sess, query, waNumber, SessionStatusConnected)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errx.Wrap(err, "failed to check duplicate session", errx.TypeInternal)
	}
	return &sess, nil
}

func (s *PostgresStore) UpsertSession(ctx context.Context, sess *Session) error {
	query := `
		INSERT INTO sessions (
			village_id, instance_name, admin_id, provider_token, status,
			wa_number, support_user_id, support_api_key, support_session_id, last_connected_at
		) VALUES (
			:village_id, :instance_name, :admin_id, :provider_token, :status,
			:wa_number, :support_user_id, :support_api_key, :support_session_id, :last_connected_at
		)
		ON CONFLICT (village_id) DO UPDATE SET
			instance_name = EXCLUDED.instance_name,
			admin_id = EXCLUDED.admin_id,
			provider_token = EXCLUDED.provider_token,
			status = EXCLUDED.status,
			wa_number = EXCLUDED.wa_number,
			support_user_id = EXCLUDED.support_user_id,
			support_api_key = EXCLUDED.support_api_key,
			support_session_id = EXCLUDED.support_session_id,
			last_connected_at = EXCLUDED.last_connected_at`

	_, err := s.db.NamedExecContext(ctx, query, sess)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return errx.Wrap(err, "session instance_name already in use", errx.TypeConflict).
				WithDetail("village_id", sess.VillageID.String())
		}
		return errx.Wrap(err, "failed to upsert session", errx.TypeInternal).
			WithDetail("village_id", sess.VillageID.String())
	}
	return nil
}

func (s *PostgresStore) DeleteSession(ctx context.Context, villageID kernel.VillageID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE village_id = $1`, villageID.String())
	if err != nil {
		return errx.Wrap(err, "failed to delete session", errx.TypeInternal)
	}
	return nil
}

// ============================================================================
// ChannelAccount
// ============================================================================

func (s *PostgresStore) GetChannelAccount(ctx context.Context, villageID kernel.VillageID) (*ChannelAccount, error) {
	var ca ChannelAccount
	query := `SELECT village_id, wa_number, wa_token, webhook_url, enabled_wa, enabled_webchat
		FROM channel_accounts WHERE village_id = $1`
	if err := s.db.GetContext(ctx, &ca, query, villageID.String()); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrChannelAccountNotFound().WithDetail("village_id", villageID.String())
		}
		return nil, errx.Wrap(err, "failed to get channel account", errx.TypeInternal)
	}
	return &ca, nil
}

func (s *PostgresStore) ListChannelAccounts(ctx context.Context) ([]*ChannelAccount, error) {
	query := `SELECT village_id, wa_number, wa_token, webhook_url, enabled_wa, enabled_webchat
		FROM channel_accounts ORDER BY village_id ASC`
	var list []ChannelAccount
	if err := s.db.SelectContext(ctx, &list, query); err != nil {
		return nil, errx.Wrap(err, "failed to list channel accounts", errx.TypeInternal)
	}
	out := make([]*ChannelAccount, len(list))
	for i := range list {
		out[i] = &list[i]
	}
	return out, nil
}

func (s *PostgresStore) UpsertChannelAccount(ctx context.Context, ca *ChannelAccount) error {
	query := `
		INSERT INTO channel_accounts (village_id, wa_number, wa_token, webhook_url, enabled_wa, enabled_webchat)
		VALUES (:village_id, :wa_number, :wa_token, :webhook_url, :enabled_wa, :enabled_webchat)
		ON CONFLICT (village_id) DO UPDATE SET
			wa_number = EXCLUDED.wa_number,
			wa_token = EXCLUDED.wa_token,
			webhook_url = EXCLUDED.webhook_url,
			enabled_wa = EXCLUDED.enabled_wa,
			enabled_webchat = EXCLUDED.enabled_webchat`
	if _, err := s.db.NamedExecContext(ctx, query, ca); err != nil {
		return errx.Wrap(err, "failed to upsert channel account", errx.TypeInternal).
			WithDetail("village_id", ca.VillageID.String())
	}
	return nil
}

// ============================================================================
// Message
// ============================================================================

func (s *PostgresStore) InsertMessage(ctx context.Context, msg *Message) (InsertOutcome, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	query := `
		INSERT INTO messages (
			id, village_id, wa_user_id, channel, channel_identifier, message_id,
			message_text, direction, source, timestamp, has_media, media_type, media_url, media_public_url
		) VALUES (
			:id, :village_id, :wa_user_id, :channel, :channel_identifier, :message_id,
			:message_text, :direction, :source, :timestamp, :has_media, :media_type, :media_url, :media_public_url
		)`

	_, err := s.db.NamedExecContext(ctx, query, msg)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return Duplicate, nil
		}
		return Inserted, errx.Wrap(err, "failed to insert message", errx.TypeInternal).
			WithDetail("message_id", msg.MessageID)
	}

	if err := s.maybeTruncateFIFO(ctx, kernel.ConversationKey{
		VillageID:         msg.VillageID,
		Channel:           msg.Channel,
		ChannelIdentifier: kernel.ChannelIdentifier(msg.ChannelIdentifier),
	}); err != nil {
		return Inserted, err
	}

	return Inserted, nil
}

// maybeTruncateFIFO implements spec.md §4.1's amortized sweep: increment a
// per-conversation counter and only run the truncating DELETE every 5th
// insertion, bound to the conversation key in a single statement.
func (s *PostgresStore) maybeTruncateFIFO(ctx context.Context, key kernel.ConversationKey) error {
	var counter int
	updateCounter := `
		UPDATE conversations SET fifo_insert_counter = fifo_insert_counter + 1
		WHERE village_id = $1 AND channel = $2 AND channel_identifier = $3
		RETURNING fifo_insert_counter`
	err := s.db.GetContext(ctx, &counter, updateCounter, key.VillageID.String(), key.Channel, key.ChannelIdentifier.String())
	if err != nil {
		if err == sql.ErrNoRows {
			// Conversation row not created yet (race with UpsertConversationOnInbound); skip, next insert will catch it.
			return nil
		}
		return errx.Wrap(err, "failed to advance fifo counter", errx.TypeInternal)
	}

	if !isFifoSweepDue(counter) {
		return nil
	}

	truncate := `
		DELETE FROM messages
		WHERE village_id = $1 AND channel = $2 AND channel_identifier = $3
		AND id NOT IN (
			SELECT id FROM messages
			WHERE village_id = $1 AND channel = $2 AND channel_identifier = $3
			ORDER BY timestamp DESC
			LIMIT $4
		)`
	if _, err := s.db.ExecContext(ctx, truncate, key.VillageID.String(), key.Channel, key.ChannelIdentifier.String(), fifoMaxMessages); err != nil {
		return errx.Wrap(err, "failed to truncate conversation history", errx.TypeInternal)
	}
	return nil
}

func (s *PostgresStore) DeleteMessageByMessageID(ctx context.Context, key kernel.ConversationKey, messageID string) error {
	query := `DELETE FROM messages WHERE village_id = $1 AND channel = $2 AND channel_identifier = $3 AND message_id = $4`
	_, err := s.db.ExecContext(ctx, query, key.VillageID.String(), key.Channel, key.ChannelIdentifier.String(), messageID)
	if err != nil {
		return errx.Wrap(err, "failed to delete message", errx.TypeInternal).WithDetail("message_id", messageID)
	}
	return nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, key kernel.ConversationKey, opts ListMessagesOpts) ([]*Message, error) {
	limit := opts.Limit
	if limit <= 0 || limit > fifoMaxMessages+20 {
		limit = 50
	}
	var rows []Message
	// Return the most recent `limit` messages, oldest first, per spec.md §4.9.
	query := `
		SELECT * FROM (
			SELECT id, village_id, wa_user_id, channel, channel_identifier, message_id,
				message_text, direction, source, timestamp, has_media, media_type, media_url, media_public_url
			FROM messages
			WHERE village_id = $1 AND channel = $2 AND channel_identifier = $3
			ORDER BY timestamp DESC
			LIMIT $4
		) recent ORDER BY timestamp ASC`
	if err := s.db.SelectContext(ctx, &rows, query, key.VillageID.String(), key.Channel, key.ChannelIdentifier.String(), limit); err != nil {
		return nil, errx.Wrap(err, "failed to list messages", errx.TypeInternal)
	}
	out := make([]*Message, len(rows))
	for i := range rows {
		out[i] = &rows[i]
	}
	return out, nil
}

// ============================================================================
// Conversation
// ============================================================================

func (s *PostgresStore) UpsertConversationOnInbound(ctx context.Context, key kernel.ConversationKey, waUserID, lastMessage string, at time.Time) error {
	query := `
		INSERT INTO conversations (village_id, channel, channel_identifier, wa_user_id, last_message, last_message_at, unread_count)
		VALUES ($1, $2, $3, $4, $5, $6, 1)
		ON CONFLICT (village_id, channel, channel_identifier) DO UPDATE SET
			wa_user_id = COALESCE(conversations.wa_user_id, EXCLUDED.wa_user_id),
			last_message = EXCLUDED.last_message,
			last_message_at = EXCLUDED.last_message_at,
			unread_count = conversations.unread_count + 1`
	_, err := s.db.ExecContext(ctx, query, key.VillageID.String(), key.Channel, key.ChannelIdentifier.String(), nullIfEmpty(waUserID), lastMessage, at)
	if err != nil {
		return errx.Wrap(err, "failed to upsert conversation on inbound", errx.TypeInternal)
	}
	return nil
}

func (s *PostgresStore) UpsertConversationOnOutbound(ctx context.Context, key kernel.ConversationKey, lastMessage string, at time.Time) error {
	query := `
		INSERT INTO conversations (village_id, channel, channel_identifier, last_message, last_message_at, unread_count)
		VALUES ($1, $2, $3, $4, $5, 0)
		ON CONFLICT (village_id, channel, channel_identifier) DO UPDATE SET
			last_message = EXCLUDED.last_message,
			last_message_at = EXCLUDED.last_message_at,
			unread_count = 0`
	_, err := s.db.ExecContext(ctx, query, key.VillageID.String(), key.Channel, key.ChannelIdentifier.String(), lastMessage, at)
	if err != nil {
		return errx.Wrap(err, "failed to upsert conversation on outbound", errx.TypeInternal)
	}
	return nil
}

func (s *PostgresStore) SetConversationProfile(ctx context.Context, key kernel.ConversationKey, userName, userPhone string) error {
	query := `
		INSERT INTO conversations (village_id, channel, channel_identifier, user_name, user_phone)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (village_id, channel, channel_identifier) DO UPDATE SET
			user_name = EXCLUDED.user_name,
			user_phone = EXCLUDED.user_phone`
	_, err := s.db.ExecContext(ctx, query, key.VillageID.String(), key.Channel, key.ChannelIdentifier.String(), nullIfEmpty(userName), nullIfEmpty(userPhone))
	if err != nil {
		return errx.Wrap(err, "failed to set conversation profile", errx.TypeInternal)
	}
	return nil
}

func (s *PostgresStore) GetConversation(ctx context.Context, key kernel.ConversationKey) (*Conversation, error) {
	var c Conversation
	query := `
		SELECT village_id, channel, channel_identifier, wa_user_id, user_name, user_phone,
			last_message, last_message_at, unread_count, is_takeover, ai_status, ai_error_message, pending_message_id
		FROM conversations WHERE village_id = $1 AND channel = $2 AND channel_identifier = $3`
	err := s.db.GetContext(ctx, &c, query, key.VillageID.String(), key.Channel, key.ChannelIdentifier.String())
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrConversationNotFound().WithDetail("key", key.String())
		}
		return nil, errx.Wrap(err, "failed to get conversation", errx.TypeInternal)
	}
	return &c, nil
}

func (s *PostgresStore) ListConversations(ctx context.Context, opts ListConversationsOpts) (ConversationPage, error) {
	page, pageSize := opts.Page, opts.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 25
	}

	where := "village_id = $1"
	args := []any{opts.VillageID.String()}
	switch opts.Filter {
	case FilterTakeover:
		where += " AND is_takeover = true"
	case FilterBot:
		where += " AND is_takeover = false"
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM conversations WHERE %s", where)
	if err := s.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return ConversationPage{}, errx.Wrap(err, "failed to count conversations", errx.TypeInternal)
	}

	dataQuery := fmt.Sprintf(`
		SELECT village_id, channel, channel_identifier, wa_user_id, user_name, user_phone,
			last_message, last_message_at, unread_count, is_takeover, ai_status, ai_error_message, pending_message_id
		FROM conversations WHERE %s ORDER BY last_message_at DESC LIMIT $2 OFFSET $3`, where)
	args = append(args, pageSize, (page-1)*pageSize)

	var rows []Conversation
	if err := s.db.SelectContext(ctx, &rows, dataQuery, args...); err != nil {
		return ConversationPage{}, errx.Wrap(err, "failed to list conversations", errx.TypeInternal)
	}
	out := make([]*Conversation, len(rows))
	for i := range rows {
		out[i] = &rows[i]
	}
	return ConversationPage{Items: out, Total: total}, nil
}

func (s *PostgresStore) MarkConversationRead(ctx context.Context, key kernel.ConversationKey) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE conversations SET unread_count = 0
		WHERE village_id = $1 AND channel = $2 AND channel_identifier = $3`,
		key.VillageID.String(), key.Channel, key.ChannelIdentifier.String())
	if err != nil {
		return errx.Wrap(err, "failed to mark conversation read", errx.TypeInternal)
	}
	return nil
}

func (s *PostgresStore) SetConversationAIProcessing(ctx context.Context, key kernel.ConversationKey, pendingMessageID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE conversations SET ai_status = $4, pending_message_id = $5, ai_error_message = NULL
		WHERE village_id = $1 AND channel = $2 AND channel_identifier = $3`,
		key.VillageID.String(), key.Channel, key.ChannelIdentifier.String(), AIStatusProcessing, pendingMessageID)
	if err != nil {
		return errx.Wrap(err, "failed to set conversation ai processing", errx.TypeInternal)
	}
	return nil
}

func (s *PostgresStore) SetConversationAIIdle(ctx context.Context, key kernel.ConversationKey) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE conversations SET ai_status = NULL, ai_error_message = NULL, pending_message_id = NULL, unread_count = 0
		WHERE village_id = $1 AND channel = $2 AND channel_identifier = $3`,
		key.VillageID.String(), key.Channel, key.ChannelIdentifier.String())
	if err != nil {
		return errx.Wrap(err, "failed to set conversation ai idle", errx.TypeInternal)
	}
	return nil
}

func (s *PostgresStore) SetConversationAIError(ctx context.Context, key kernel.ConversationKey, preview string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE conversations SET ai_status = $4, ai_error_message = $5
		WHERE village_id = $1 AND channel = $2 AND channel_identifier = $3`,
		key.VillageID.String(), key.Channel, key.ChannelIdentifier.String(), AIStatusError, preview)
	if err != nil {
		return errx.Wrap(err, "failed to set conversation ai error", errx.TypeInternal)
	}
	return nil
}

func (s *PostgresStore) SetConversationTakeover(ctx context.Context, key kernel.ConversationKey, isTakeover bool) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE conversations SET is_takeover = $4
		WHERE village_id = $1 AND channel = $2 AND channel_identifier = $3`,
		key.VillageID.String(), key.Channel, key.ChannelIdentifier.String(), isTakeover)
	if err != nil {
		return errx.Wrap(err, "failed to set conversation takeover flag", errx.TypeInternal)
	}
	return nil
}

func (s *PostgresStore) DeleteConversationCascade(ctx context.Context, key kernel.ConversationKey) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errx.Wrap(err, "failed to begin delete transaction", errx.TypeInternal)
	}
	defer tx.Rollback()

	args := []any{key.VillageID.String(), key.Channel, key.ChannelIdentifier.String()}
	stmts := []string{
		`DELETE FROM messages WHERE village_id = $1 AND channel = $2 AND channel_identifier = $3`,
		`DELETE FROM takeover_sessions WHERE village_id = $1 AND channel = $2 AND channel_identifier = $3`,
		`DELETE FROM pending_messages WHERE village_id = $1 AND channel = $2 AND channel_identifier = $3`,
		`DELETE FROM conversations WHERE village_id = $1 AND channel = $2 AND channel_identifier = $3`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return errx.Wrap(err, "failed to cascade-delete conversation", errx.TypeInternal)
		}
	}
	if err := tx.Commit(); err != nil {
		return errx.Wrap(err, "failed to commit conversation delete", errx.TypeInternal)
	}
	return nil
}

// ============================================================================
// TakeoverSession
// ============================================================================

func (s *PostgresStore) StartTakeover(ctx context.Context, t *TakeoverSession) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.StartedAt.IsZero() {
		t.StartedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errx.Wrap(err, "failed to begin takeover transaction", errx.TypeInternal)
	}
	defer tx.Rollback()

	key := kernel.ConversationKey{VillageID: t.VillageID, Channel: t.Channel, ChannelIdentifier: kernel.ChannelIdentifier(t.ChannelIdentifier)}
	if _, err := tx.ExecContext(ctx, `
		UPDATE takeover_sessions SET ended_at = NOW()
		WHERE village_id = $1 AND channel = $2 AND channel_identifier = $3 AND ended_at IS NULL`,
		key.VillageID.String(), key.Channel, key.ChannelIdentifier.String()); err != nil {
		return errx.Wrap(err, "failed to end prior takeover", errx.TypeInternal)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO takeover_sessions (id, village_id, channel, channel_identifier, admin_id, admin_name, reason, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.ID, t.VillageID.String(), t.Channel, t.ChannelIdentifier, t.AdminID, t.AdminName, t.Reason, t.StartedAt); err != nil {
		return errx.Wrap(err, "failed to insert takeover", errx.TypeInternal)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE conversations SET is_takeover = true
		WHERE village_id = $1 AND channel = $2 AND channel_identifier = $3`,
		key.VillageID.String(), key.Channel, key.ChannelIdentifier.String()); err != nil {
		return errx.Wrap(err, "failed to flip conversation takeover flag", errx.TypeInternal)
	}

	if err := tx.Commit(); err != nil {
		return errx.Wrap(err, "failed to commit takeover start", errx.TypeInternal)
	}
	return nil
}

func (s *PostgresStore) EndTakeover(ctx context.Context, key kernel.ConversationKey) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errx.Wrap(err, "failed to begin end-takeover transaction", errx.TypeInternal)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE takeover_sessions SET ended_at = NOW()
		WHERE village_id = $1 AND channel = $2 AND channel_identifier = $3 AND ended_at IS NULL`,
		key.VillageID.String(), key.Channel, key.ChannelIdentifier.String()); err != nil {
		return errx.Wrap(err, "failed to end takeover", errx.TypeInternal)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE conversations SET is_takeover = false
		WHERE village_id = $1 AND channel = $2 AND channel_identifier = $3`,
		key.VillageID.String(), key.Channel, key.ChannelIdentifier.String()); err != nil {
		return errx.Wrap(err, "failed to clear conversation takeover flag", errx.TypeInternal)
	}

	if err := tx.Commit(); err != nil {
		return errx.Wrap(err, "failed to commit end-takeover", errx.TypeInternal)
	}
	return nil
}

func (s *PostgresStore) GetActiveTakeover(ctx context.Context, key kernel.ConversationKey) (*TakeoverSession, error) {
	var t TakeoverSession
	query := `
		SELECT id, village_id, channel, channel_identifier, admin_id, admin_name, reason, started_at, ended_at
		FROM takeover_sessions
		WHERE village_id = $1 AND channel = $2 AND channel_identifier = $3 AND ended_at IS NULL`
	err := s.db.GetContext(ctx, &t, query, key.VillageID.String(), key.Channel, key.ChannelIdentifier.String())
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errx.Wrap(err, "failed to get active takeover", errx.TypeInternal)
	}
	return &t, nil
}

// ============================================================================
// PendingMessage
// ============================================================================

func (s *PostgresStore) CreatePendingMessage(ctx context.Context, p *PendingMessage) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	if p.Status == "" {
		p.Status = PendingStatusPending
	}

	query := `
		INSERT INTO pending_messages (
			id, village_id, wa_user_id, channel, channel_identifier, message_id,
			message_text, status, retry_count, error_msg, created_at, updated_at
		) VALUES (
			:id, :village_id, :wa_user_id, :channel, :channel_identifier, :message_id,
			:message_text, :status, :retry_count, :error_msg, :created_at, :updated_at
		)`
	if _, err := s.db.NamedExecContext(ctx, query, p); err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return nil // message_id already pending: idempotent no-op.
		}
		return errx.Wrap(err, "failed to create pending message", errx.TypeInternal).WithDetail("message_id", p.MessageID)
	}
	return nil
}

func (s *PostgresStore) GetPendingMessageByMessageID(ctx context.Context, messageID string) (*PendingMessage, error) {
	var p PendingMessage
	query := `
		SELECT id, village_id, wa_user_id, channel, channel_identifier, message_id,
			message_text, status, retry_count, error_msg, created_at, updated_at
		FROM pending_messages WHERE message_id = $1`
	if err := s.db.GetContext(ctx, &p, query, messageID); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrPendingMessageNotFound().WithDetail("message_id", messageID)
		}
		return nil, errx.Wrap(err, "failed to get pending message", errx.TypeInternal)
	}
	return &p, nil
}

func (s *PostgresStore) GetLatestPendingForConversation(ctx context.Context, key kernel.ConversationKey) (*PendingMessage, error) {
	var p PendingMessage
	query := `
		SELECT id, village_id, wa_user_id, channel, channel_identifier, message_id,
			message_text, status, retry_count, error_msg, created_at, updated_at
		FROM pending_messages
		WHERE village_id = $1 AND channel = $2 AND channel_identifier = $3
		ORDER BY created_at DESC LIMIT 1`
	err := s.db.GetContext(ctx, &p, query, key.VillageID.String(), key.Channel, key.ChannelIdentifier.String())
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrPendingMessageNotFound().WithDetail("key", key.String())
		}
		return nil, errx.Wrap(err, "failed to get latest pending message", errx.TypeInternal)
	}
	return &p, nil
}

func (s *PostgresStore) MarkPendingProcessing(ctx context.Context, messageID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE pending_messages SET status = $2, updated_at = NOW()
		WHERE message_id = $1 AND status != $3`, messageID, PendingStatusProcessing, PendingStatusProcessing)
	if err != nil {
		return errx.Wrap(err, "failed to mark pending processing", errx.TypeInternal)
	}
	return nil
}

func (s *PostgresStore) MarkPendingCompleted(ctx context.Context, messageIDs []string) error {
	if len(messageIDs) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM pending_messages WHERE message_id = ANY($1)`, pq.Array(messageIDs))
	if err != nil {
		return errx.Wrap(err, "failed to mark pending completed", errx.TypeInternal)
	}
	return nil
}

// MarkPendingFailedOrRetry increments retry_count; rows reaching
// MaxPendingRetries move to "failed", the rest move back to "pending" for
// another publish attempt (spec.md §3 PendingMessage lifetime).
func (s *PostgresStore) MarkPendingFailedOrRetry(ctx context.Context, messageIDs []string, errMsg string) error {
	if len(messageIDs) == 0 {
		return nil
	}
	query := `
		UPDATE pending_messages SET
			retry_count = retry_count + 1,
			error_msg = $2,
			updated_at = NOW(),
			status = CASE WHEN retry_count + 1 >= $3 THEN $4 ELSE $5 END
		WHERE message_id = ANY($1)`
	_, err := s.db.ExecContext(ctx, query, pq.Array(messageIDs), errMsg, MaxPendingRetries, PendingStatusFailed, PendingStatusPending)
	if err != nil {
		return errx.Wrap(err, "failed to mark pending failed/retry", errx.TypeInternal)
	}
	return nil
}

func (s *PostgresStore) JanitorSweepPending(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM pending_messages
		WHERE status IN ($1, $2) AND updated_at < $3`,
		PendingStatusCompleted, PendingStatusFailed, cutoff)
	if err != nil {
		return 0, errx.Wrap(err, "failed to sweep pending messages", errx.TypeInternal)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// ============================================================================
// SendLog
// ============================================================================

func (s *PostgresStore) InsertSendLog(ctx context.Context, sl *SendLog) error {
	if sl.ID == "" {
		sl.ID = uuid.NewString()
	}
	if sl.CreatedAt.IsZero() {
		sl.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO send_logs (id, village_id, channel_identifier, message_id, status, error_text, created_at)
		VALUES (:id, :village_id, :channel_identifier, :message_id, :status, :error_text, :created_at)`
	if _, err := s.db.NamedExecContext(ctx, query, sl); err != nil {
		return errx.Wrap(err, "failed to insert send log", errx.TypeInternal)
	}
	return nil
}

func (s *PostgresStore) GetSendLogForMessage(ctx context.Context, messageID string) ([]*SendLog, error) {
	query := `
		SELECT id, village_id, channel_identifier, message_id, status, error_text, created_at
		FROM send_logs WHERE message_id = $1 ORDER BY created_at ASC`
	var rows []SendLog
	if err := s.db.SelectContext(ctx, &rows, query, messageID); err != nil {
		return nil, errx.Wrap(err, "failed to read send log", errx.TypeInternal)
	}
	out := make([]*SendLog, len(rows))
	for i := range rows {
		out[i] = &rows[i]
	}
	return out, nil
}

// ============================================================================
// Settings
// ============================================================================

// GetSettings implements spec.md §4.1's reload policy: forceReload bypasses
// the process-local cache (used only by markAsRead); everything else may
// read the cached value.
func (s *PostgresStore) GetSettings(ctx context.Context, forceReload bool) (*Settings, error) {
	s.settingsMu.Lock()
	cached := s.cachedSettings
	s.settingsMu.Unlock()

	if cached != nil && !forceReload {
		return cached, nil
	}

	var st Settings
	query := `SELECT id, auto_read_messages, typing_indicator FROM settings WHERE id = $1`
	err := s.db.GetContext(ctx, &st, query, DefaultSettingsID)
	if err == sql.ErrNoRows {
		st = Settings{ID: DefaultSettingsID, AutoReadMessages: true, TypingIndicator: true}
		if err := s.UpdateSettings(ctx, &st); err != nil {
			return nil, err
		}
		return &st, nil
	}
	if err != nil {
		return nil, errx.Wrap(err, "failed to get settings", errx.TypeInternal)
	}

	s.settingsMu.Lock()
	s.cachedSettings = &st
	s.settingsMu.Unlock()

	return &st, nil
}

func (s *PostgresStore) UpdateSettings(ctx context.Context, st *Settings) error {
	st.ID = DefaultSettingsID
	query := `
		INSERT INTO settings (id, auto_read_messages, typing_indicator)
		VALUES (:id, :auto_read_messages, :typing_indicator)
		ON CONFLICT (id) DO UPDATE SET
			auto_read_messages = EXCLUDED.auto_read_messages,
			typing_indicator = EXCLUDED.typing_indicator`
	if _, err := s.db.NamedExecContext(ctx, query, st); err != nil {
		return errx.Wrap(err, "failed to update settings", errx.TypeInternal)
	}

	s.settingsMu.Lock()
	s.cachedSettings = st
	s.settingsMu.Unlock()

	return nil
}

// isFifoSweepDue reports whether the counter has reached a 5th-insertion
// boundary (spec.md §4.1's amortization rule).
func isFifoSweepDue(counter int) bool {
	return counter%fifoTruncateEvery == 0
}

func nullIfEmpty(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}
