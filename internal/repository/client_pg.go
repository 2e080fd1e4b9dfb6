package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/pipelabs/tradegate/internal/model"
)

type PostgresClientRepo struct {
	db *sqlx.DB
}

func NewPostgresClientRepo(db *sqlx.DB) *PostgresClientRepo {
	repo := &PostgresClientRepo{db: db}
	_ = repo.ensureSchema(context.Background())
	return repo
}

type clientDB struct {
	ID           string       `db:"id"`
	Name         string       `db:"name"`
	APIKey       string       `db:"api_key"`
	Status       string       `db:"status"`
	SettingsJSON []byte       `db:"settings"`
	CreatedAt    time.Time    `db:"created_at"`
	UpdatedAt    sql.NullTime `db:"updated_at"`
}

const clientColumns = `id, name, api_key, status, settings, created_at, updated_at`

func (r *PostgresClientRepo) GetByID(ctx context.Context, id string) (*model.Client, error) {
	var cd clientDB
	query := `SELECT ` + clientColumns + ` FROM clients WHERE id = $1 LIMIT 1`
	if err := r.db.GetContext(ctx, &cd, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTenantNotFound
		}
		return nil, err
	}
	return r.toDomain(&cd)
}

func (r *PostgresClientRepo) GetByAPIKey(ctx context.Context, apiKey string) (*model.Client, error) {
	var cd clientDB
	query := `SELECT ` + clientColumns + ` FROM clients WHERE api_key = $1 LIMIT 1`
	if err := r.db.GetContext(ctx, &cd, query, apiKey); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTenantNotFound
		}
		return nil, err
	}
	return r.toDomain(&cd)
}

func (r *PostgresClientRepo) List(ctx context.Context, limit, offset int) ([]*model.Client, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + clientColumns + ` FROM clients ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	rows, err := r.db.QueryxContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := make([]*model.Client, 0, limit)
	for rows.Next() {
		var cd clientDB
		if err := rows.StructScan(&cd); err != nil {
			return nil, err
		}
		client, err := r.toDomain(&cd)
		if err != nil {
			return nil, err
		}
		results = append(results, client)
	}
	return results, nil
}

func (r *PostgresClientRepo) Create(ctx context.Context, c *model.Client) error {
	settings, _ := json.Marshal(c.Settings)
	query := `INSERT INTO clients (id, name, api_key, status, settings, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.db.ExecContext(ctx, query, c.ID, c.Name, c.APIKey, c.Status, settings, time.Now().UTC())
	return err
}

func (r *PostgresClientRepo) Update(ctx context.Context, c *model.Client) error {
	settings, _ := json.Marshal(c.Settings)
	_, err := r.db.ExecContext(ctx, `
		UPDATE clients
		SET name = $2, api_key = $3, status = $4, settings = $5, updated_at = $6
		WHERE id = $1
	`, c.ID, c.Name, c.APIKey, c.Status, settings, time.Now().UTC())
	return err
}

// SlugTaken reports whether another client's display name normalizes to the
// same execution-account slug. The derivation mirrors model.AccountSlug; a
// collision here would silently merge two clients' execution accounts.
func (r *PostgresClientRepo) SlugTaken(ctx context.Context, slug, excludeClientID string) (bool, error) {
	var count int
	query := `SELECT COUNT(1) FROM clients
	          WHERE id <> $2
	            AND 'client_' || replace(lower(btrim(name)), ' ', '_') = $1`
	if err := r.db.GetContext(ctx, &count, query, slug, excludeClientID); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *PostgresClientRepo) toDomain(cd *clientDB) (*model.Client, error) {
	c := &model.Client{
		ID:        cd.ID,
		Name:      cd.Name,
		APIKey:    cd.APIKey,
		Status:    cd.Status,
		CreatedAt: cd.CreatedAt,
	}
	if len(cd.SettingsJSON) > 0 {
		if err := json.Unmarshal(cd.SettingsJSON, &c.Settings); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (r *PostgresClientRepo) ensureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS clients (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			api_key TEXT UNIQUE,
			status TEXT DEFAULT 'active',
			settings JSONB,
			created_at TIMESTAMPTZ,
			updated_at TIMESTAMPTZ
		)
	`)
	return err
}
