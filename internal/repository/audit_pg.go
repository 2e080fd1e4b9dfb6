package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/pipelabs/tradegate/internal/model"
)

type PostgresAuditRepo struct {
	db *sqlx.DB
}

func NewPostgresAuditRepo(db *sqlx.DB) *PostgresAuditRepo {
	repo := &PostgresAuditRepo{db: db}
	_ = repo.ensureSchema(context.Background())
	return repo
}

func (r *PostgresAuditRepo) Insert(ctx context.Context, entry *model.AuditLog) error {
	if entry == nil {
		return nil
	}
	contextJSON, _ := json.Marshal(entry.Context)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_logs (
			id, tenant_id, method, path, ip, user_agent,
			request_body, status_code, response_body,
			latency_ms, context, created_at
		) VALUES (
			$1,$2,$3,$4,$5,$6,
			$7,$8,$9,
			$10,$11,$12
		)
		ON CONFLICT (id) DO NOTHING
	`, entry.ID, entry.TenantID, entry.Method, entry.Path, entry.IP, entry.UserAgent,
		entry.RequestBody, entry.StatusCode, entry.ResponseBody,
		entry.LatencyMs, contextJSON, entry.CreatedAt)
	return err
}

func (r *PostgresAuditRepo) List(ctx context.Context, tenantID string, limit int, from, to *time.Time) ([]*model.AuditLog, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	query := `SELECT id, tenant_id, method, path, ip, user_agent, request_body, status_code, response_body, latency_ms, context, created_at FROM audit_logs`
	clauses := []string{}
	args := []interface{}{}
	idx := 1

	if tenantID != "" {
		clauses = append(clauses, fmt.Sprintf("tenant_id = $%d", idx))
		args = append(args, tenantID)
		idx++
	}
	if from != nil {
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", idx))
		args = append(args, *from)
		idx++
	}
	if to != nil {
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", idx))
		args = append(args, *to)
		idx++
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", idx)
	args = append(args, limit)

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]*model.AuditLog, 0, limit)
	for rows.Next() {
		var entry model.AuditLog
		var contextJSON []byte
		if err := rows.Scan(
			&entry.ID,
			&entry.TenantID,
			&entry.Method,
			&entry.Path,
			&entry.IP,
			&entry.UserAgent,
			&entry.RequestBody,
			&entry.StatusCode,
			&entry.ResponseBody,
			&entry.LatencyMs,
			&contextJSON,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		if len(contextJSON) > 0 {
			_ = json.Unmarshal(contextJSON, &entry.Context)
		} else {
			entry.Context = map[string]interface{}{}
		}
		records = append(records, &entry)
	}
	return records, nil
}

func (r *PostgresAuditRepo) InsertTurn(ctx context.Context, turn *model.ChatTurn) error {
	if turn == nil {
		return nil
	}
	actionsJSON, _ := json.Marshal(turn.Actions)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO chat_turns (id, client_id, role, content, actions, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO NOTHING
	`, turn.ID, turn.ClientID, turn.Role, turn.Content, actionsJSON, turn.CreatedAt)
	return err
}

func (r *PostgresAuditRepo) ListTurns(ctx context.Context, clientID string, limit int) ([]*model.ChatTurn, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := r.db.QueryxContext(ctx, `
		SELECT id, client_id, role, content, actions, created_at
		FROM chat_turns WHERE client_id = $1
		ORDER BY created_at DESC LIMIT $2
	`, clientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	turns := make([]*model.ChatTurn, 0, limit)
	for rows.Next() {
		var turn model.ChatTurn
		var actionsJSON []byte
		if err := rows.Scan(&turn.ID, &turn.ClientID, &turn.Role, &turn.Content, &actionsJSON, &turn.CreatedAt); err != nil {
			return nil, err
		}
		if len(actionsJSON) > 0 {
			// ActionRecord.Action is an interface; keep raw payloads readable via map decode
			var records []model.ActionRecord
			if err := json.Unmarshal(actionsJSON, &records); err == nil {
				turn.Actions = records
			}
		}
		turns = append(turns, &turn)
	}
	return turns, nil
}

func (r *PostgresAuditRepo) Cleanup(ctx context.Context, olderThan time.Duration) error {
	if olderThan <= 0 {
		return nil
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	if _, err := r.db.ExecContext(ctx, `DELETE FROM audit_logs WHERE created_at < $1`, cutoff); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `DELETE FROM chat_turns WHERE created_at < $1`, cutoff)
	return err
}

func (r *PostgresAuditRepo) ensureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS audit_logs (
			id TEXT PRIMARY KEY,
			tenant_id TEXT,
			method TEXT,
			path TEXT,
			ip TEXT,
			user_agent TEXT,
			request_body TEXT,
			status_code INTEGER,
			response_body TEXT,
			latency_ms BIGINT,
			context JSONB,
			created_at TIMESTAMPTZ
		)
	`)
	if err != nil {
		return err
	}
	_, _ = r.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_audit_logs_tenant ON audit_logs(tenant_id, created_at DESC)`)

	_, err = r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS chat_turns (
			id TEXT PRIMARY KEY,
			client_id TEXT,
			role TEXT,
			content TEXT,
			actions JSONB,
			created_at TIMESTAMPTZ
		)
	`)
	if err != nil {
		return err
	}
	_, _ = r.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_chat_turns_client ON chat_turns(client_id, created_at DESC)`)
	return nil
}
