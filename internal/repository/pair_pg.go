package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/pipelabs/tradegate/internal/model"
)

type PostgresPairRepo struct {
	db *sqlx.DB
}

func NewPostgresPairRepo(db *sqlx.DB) *PostgresPairRepo {
	repo := &PostgresPairRepo{db: db}
	_ = repo.ensureSchema(context.Background())
	return repo
}

type pairDB struct {
	ID        string    `db:"id"`
	ClientID  string    `db:"client_id"`
	Exchange  string    `db:"exchange"`
	Pair      string    `db:"pair"`
	Status    string    `db:"status"`
	CreatedAt time.Time `db:"created_at"`
}

func (r *PostgresPairRepo) ListByClient(ctx context.Context, clientID string) ([]*model.TradingPair, error) {
	query := `SELECT id, client_id, exchange, pair, status, created_at
	          FROM client_pairs WHERE client_id = $1 ORDER BY created_at`
	rows, err := r.db.QueryxContext(ctx, query, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var results []*model.TradingPair
	for rows.Next() {
		var pd pairDB
		if err := rows.StructScan(&pd); err != nil {
			return nil, err
		}
		results = append(results, &model.TradingPair{
			ID:        pd.ID,
			ClientID:  pd.ClientID,
			Exchange:  pd.Exchange,
			Pair:      pd.Pair,
			Status:    pd.Status,
			CreatedAt: pd.CreatedAt,
		})
	}
	return results, nil
}

func (r *PostgresPairRepo) Insert(ctx context.Context, p *model.TradingPair) error {
	query := `INSERT INTO client_pairs (id, client_id, exchange, pair, status, created_at)
	          VALUES ($1,$2,$3,$4,$5,$6)`
	_, err := r.db.ExecContext(ctx, query, p.ID, p.ClientID, p.Exchange, p.Pair, p.Status, time.Now().UTC())
	return err
}

func (r *PostgresPairRepo) Delete(ctx context.Context, clientID, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM client_pairs WHERE id = $1 AND client_id = $2`, id, clientID)
	return err
}

func (r *PostgresPairRepo) ensureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS client_pairs (
			id TEXT PRIMARY KEY,
			client_id TEXT NOT NULL,
			exchange TEXT NOT NULL,
			pair TEXT NOT NULL,
			status TEXT DEFAULT 'active',
			created_at TIMESTAMPTZ
		)
	`)
	if err != nil {
		return err
	}
	_, _ = r.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_client_pairs_client ON client_pairs(client_id)`)
	return nil
}
