package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/pipelabs/tradegate/internal/model"
)

type PostgresCredentialRepo struct {
	db *sqlx.DB
}

func NewPostgresCredentialRepo(db *sqlx.DB) *PostgresCredentialRepo {
	repo := &PostgresCredentialRepo{db: db}
	_ = repo.ensureSchema(context.Background())
	return repo
}

type credentialDB struct {
	ID                  string       `db:"id"`
	ClientID            string       `db:"client_id"`
	Exchange            string       `db:"exchange"`
	Label               string       `db:"label"`
	APIKeyEncrypted     string       `db:"api_key_encrypted"`
	APISecretEncrypted  string       `db:"api_secret_encrypted"`
	PassphraseEncrypted string       `db:"passphrase_encrypted"`
	IsActive            bool         `db:"is_active"`
	IsTestnet           bool         `db:"is_testnet"`
	CreatedAt           time.Time    `db:"created_at"`
	UpdatedAt           sql.NullTime `db:"updated_at"`
}

const credentialColumns = `id, client_id, exchange, label, api_key_encrypted,
	api_secret_encrypted, passphrase_encrypted, is_active, is_testnet,
	created_at, updated_at`

func (r *PostgresCredentialRepo) Insert(ctx context.Context, c *model.ExchangeCredential) error {
	now := time.Now().UTC()
	query := `INSERT INTO exchange_credentials (` + credentialColumns + `)
	          VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`
	_, err := r.db.ExecContext(ctx, query,
		c.ID, c.ClientID, c.Exchange, c.Label,
		c.APIKeyEncrypted, c.APISecretEncrypted, c.PassphraseEncrypted,
		c.IsActive, c.IsTestnet, now, now)
	return err
}

func (r *PostgresCredentialRepo) GetByID(ctx context.Context, clientID, id string) (*model.ExchangeCredential, error) {
	var cd credentialDB
	// clientID is part of the predicate: a credential is only visible to its owner
	query := `SELECT ` + credentialColumns + ` FROM exchange_credentials WHERE id = $1 AND client_id = $2 LIMIT 1`
	if err := r.db.GetContext(ctx, &cd, query, id, clientID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCredentialNotFound
		}
		return nil, err
	}
	return toCredential(&cd), nil
}

func (r *PostgresCredentialRepo) ListByClient(ctx context.Context, clientID string) ([]*model.ExchangeCredential, error) {
	return r.list(ctx, `SELECT `+credentialColumns+` FROM exchange_credentials WHERE client_id = $1 ORDER BY created_at DESC`, clientID)
}

func (r *PostgresCredentialRepo) ListActiveByClient(ctx context.Context, clientID string) ([]*model.ExchangeCredential, error) {
	return r.list(ctx, `SELECT `+credentialColumns+` FROM exchange_credentials WHERE client_id = $1 AND is_active ORDER BY created_at DESC`, clientID)
}

func (r *PostgresCredentialRepo) Deactivate(ctx context.Context, clientID, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE exchange_credentials SET is_active = FALSE, updated_at = $3
		WHERE id = $1 AND client_id = $2
	`, id, clientID, time.Now().UTC())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrCredentialNotFound
	}
	return nil
}

func (r *PostgresCredentialRepo) Delete(ctx context.Context, clientID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM exchange_credentials WHERE id = $1 AND client_id = $2`, id, clientID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrCredentialNotFound
	}
	return nil
}

func (r *PostgresCredentialRepo) list(ctx context.Context, query string, args ...interface{}) ([]*model.ExchangeCredential, error) {
	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var results []*model.ExchangeCredential
	for rows.Next() {
		var cd credentialDB
		if err := rows.StructScan(&cd); err != nil {
			return nil, err
		}
		results = append(results, toCredential(&cd))
	}
	return results, nil
}

func toCredential(cd *credentialDB) *model.ExchangeCredential {
	c := &model.ExchangeCredential{
		ID:                  cd.ID,
		ClientID:            cd.ClientID,
		Exchange:            cd.Exchange,
		Label:               cd.Label,
		APIKeyEncrypted:     cd.APIKeyEncrypted,
		APISecretEncrypted:  cd.APISecretEncrypted,
		PassphraseEncrypted: cd.PassphraseEncrypted,
		IsActive:            cd.IsActive,
		IsTestnet:           cd.IsTestnet,
		CreatedAt:           cd.CreatedAt,
	}
	if cd.UpdatedAt.Valid {
		c.UpdatedAt = cd.UpdatedAt.Time
	}
	return c
}

func (r *PostgresCredentialRepo) ensureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS exchange_credentials (
			id TEXT PRIMARY KEY,
			client_id TEXT NOT NULL,
			exchange TEXT NOT NULL,
			label TEXT DEFAULT '',
			api_key_encrypted TEXT NOT NULL,
			api_secret_encrypted TEXT NOT NULL,
			passphrase_encrypted TEXT DEFAULT '',
			is_active BOOLEAN DEFAULT TRUE,
			is_testnet BOOLEAN DEFAULT FALSE,
			created_at TIMESTAMPTZ,
			updated_at TIMESTAMPTZ
		)
	`)
	if err != nil {
		return err
	}
	_, _ = r.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_exchange_credentials_client ON exchange_credentials(client_id, is_active)`)
	return nil
}
