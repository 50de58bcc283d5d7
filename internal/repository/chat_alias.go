package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/werpoz/chatrelay/internal/model"
)

// AliasPair is a jid/lid alias pair whose records point at different chat
// keys despite correlated creation times.
type AliasPair struct {
	JID model.ChatAliasRecord
	LID model.ChatAliasRecord
}

// ChatAliasRepository defines persistence for the chat alias table.
// Functional uniqueness holds on (session_id, alias).
type ChatAliasRepository interface {
	// ResolveBatch returns alias→chat_key for every known alias in the input.
	ResolveBatch(ctx context.Context, sessionID string, aliases []string) (map[string]string, error)

	// UpsertBatch inserts the records, keeping the existing chat_key when a
	// concurrent writer won the (session_id, alias) race.
	UpsertBatch(ctx context.Context, records []model.ChatAliasRecord) error

	// MergeKeys reassigns every alias and chat-scoped row under fromKey to
	// toKey within one transaction. The losing key ceases to be referenced.
	MergeKeys(ctx context.Context, sessionID, fromKey, toKey string) error

	// FindCorrelatedPairs returns jid/lid pairs in the session created within
	// the same second that resolve to different chat keys.
	FindCorrelatedPairs(ctx context.Context, sessionID string) ([]AliasPair, error)

	// GetByAlias returns the record or nil when absent.
	GetByAlias(ctx context.Context, sessionID, alias string) (*model.ChatAliasRecord, error)
}

type ChatAliasRepositoryImpl struct {
	db *sqlx.DB
}

func NewChatAliasRepository(db *sqlx.DB) *ChatAliasRepositoryImpl {
	return &ChatAliasRepositoryImpl{db: db}
}

func (r *ChatAliasRepositoryImpl) ResolveBatch(ctx context.Context, sessionID string, aliases []string) (map[string]string, error) {
	if len(aliases) == 0 {
		return map[string]string{}, nil
	}

	const base = `SELECT alias, chat_key FROM chat_aliases WHERE session_id = ? AND alias IN (?)`
	query, args, err := sqlx.In(base, sessionID, aliases)
	if err != nil {
		return nil, err
	}
	query = r.db.Rebind(query)

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string, len(aliases))
	for rows.Next() {
		var alias, key string
		if err := rows.Scan(&alias, &key); err != nil {
			return nil, err
		}
		out[alias] = key
	}
	return out, rows.Err()
}

func (r *ChatAliasRepositoryImpl) UpsertBatch(ctx context.Context, records []model.ChatAliasRecord) error {
	if len(records) == 0 {
		return nil
	}

	// Keeps the stored chat_key on duplicate: the first writer wins and a
	// concurrent caller re-resolves afterwards.
	const q = `
		INSERT INTO chat_aliases
		    (id, tenant_id, session_id, chat_key, alias, alias_type, created_at, updated_at)
		VALUES
		    (?,  ?,         ?,          ?,        ?,     ?,          ?,          ?)
		ON DUPLICATE KEY UPDATE
		    updated_at = VALUES(updated_at)
	`
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()
	for _, rec := range records {
		createdAt := rec.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		if _, err := tx.ExecContext(ctx, q,
			rec.ID, rec.TenantID, rec.SessionID, rec.ChatKey, rec.Alias, rec.AliasType.String(), createdAt, now,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *ChatAliasRepositoryImpl) MergeKeys(ctx context.Context, sessionID, fromKey, toKey string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// All chat-scoped tables keyed by chat_key follow the alias rewrite.
	stmts := []string{
		`UPDATE chat_aliases  SET chat_key = ?, updated_at = NOW() WHERE session_id = ? AND chat_key = ?`,
		`UPDATE chat_messages SET chat_key = ? WHERE session_id = ? AND chat_key = ?`,
	}
	for _, q := range stmts {
		if _, err := tx.ExecContext(ctx, q, toKey, sessionID, fromKey); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// correlatedRow is the flattened self-join result.
type correlatedRow struct {
	JIDID      string    `db:"jid_id"`
	JIDTenant  string    `db:"jid_tenant_id"`
	JIDAlias   string    `db:"jid_alias"`
	JIDChatKey string    `db:"jid_chat_key"`
	JIDCreated time.Time `db:"jid_created_at"`
	LIDID      string    `db:"lid_id"`
	LIDTenant  string    `db:"lid_tenant_id"`
	LIDAlias   string    `db:"lid_alias"`
	LIDChatKey string    `db:"lid_chat_key"`
	LIDCreated time.Time `db:"lid_created_at"`
}

func (r *ChatAliasRepositoryImpl) FindCorrelatedPairs(ctx context.Context, sessionID string) ([]AliasPair, error) {
	const q = `
		SELECT
		    a.id AS jid_id, a.tenant_id AS jid_tenant_id, a.alias AS jid_alias,
		    a.chat_key AS jid_chat_key, a.created_at AS jid_created_at,
		    b.id AS lid_id, b.tenant_id AS lid_tenant_id, b.alias AS lid_alias,
		    b.chat_key AS lid_chat_key, b.created_at AS lid_created_at
		FROM chat_aliases a
		JOIN chat_aliases b
		    ON  b.session_id = a.session_id
		    AND b.alias_type = 'lid'
		    AND b.chat_key  <> a.chat_key
		    AND UNIX_TIMESTAMP(b.created_at) = UNIX_TIMESTAMP(a.created_at)
		WHERE a.session_id = ? AND a.alias_type = 'jid'
	`
	var rows []correlatedRow
	if err := r.db.SelectContext(ctx, &rows, q, sessionID); err != nil {
		return nil, err
	}

	out := make([]AliasPair, 0, len(rows))
	for _, row := range rows {
		out = append(out, AliasPair{
			JID: model.ChatAliasRecord{
				ID: row.JIDID, TenantID: row.JIDTenant, SessionID: sessionID,
				ChatKey: row.JIDChatKey, Alias: row.JIDAlias, AliasType: model.AliasJID,
				CreatedAt: row.JIDCreated,
			},
			LID: model.ChatAliasRecord{
				ID: row.LIDID, TenantID: row.LIDTenant, SessionID: sessionID,
				ChatKey: row.LIDChatKey, Alias: row.LIDAlias, AliasType: model.AliasLID,
				CreatedAt: row.LIDCreated,
			},
		})
	}
	return out, nil
}

func (r *ChatAliasRepositoryImpl) GetByAlias(ctx context.Context, sessionID, alias string) (*model.ChatAliasRecord, error) {
	const q = `
		SELECT id, tenant_id, session_id, chat_key, alias, alias_type, created_at, updated_at
		FROM chat_aliases
		WHERE session_id = ? AND alias = ?
	`
	var rec model.ChatAliasRecord
	if err := sqlx.GetContext(ctx, r.db, &rec, q, sessionID, alias); err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}
