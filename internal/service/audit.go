package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pipelabs/tradegate/internal/model"
	"github.com/pipelabs/tradegate/internal/pkg/logger"
)

// AuditRepo is the persistent side of the audit pipeline. A nil repo is
// valid: the service then serves reads from its in-memory ring only.
type AuditRepo interface {
	Insert(ctx context.Context, entry *model.AuditLog) error
	List(ctx context.Context, tenantID string, limit int, from, to *time.Time) ([]*model.AuditLog, error)
	InsertTurn(ctx context.Context, turn *model.ChatTurn) error
	ListTurns(ctx context.Context, clientID string, limit int) ([]*model.ChatTurn, error)
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

const defaultRingSize = 1000

// AuditService records request audit entries and chat turns asynchronously:
// callers enqueue and return, a single consumer goroutine writes the JSONL
// file and the database. A bounded ring keeps the latest entries readable
// even without a database; when the queue is full the entry is dropped with
// a warning rather than blocking a request.
type AuditService struct {
	repo    AuditRepo
	logDir  string
	entries chan *model.AuditLog
	turns   chan *model.ChatTurn
	done    chan struct{}

	mu   sync.RWMutex
	ring []*model.AuditLog
	next int
}

func NewAuditService(repo AuditRepo, logDir string, bufferSize int) *AuditService {
	if bufferSize <= 0 {
		bufferSize = defaultRingSize
	}
	s := &AuditService{
		repo:    repo,
		logDir:  logDir,
		entries: make(chan *model.AuditLog, bufferSize),
		turns:   make(chan *model.ChatTurn, bufferSize),
		done:    make(chan struct{}),
		ring:    make([]*model.AuditLog, 0, defaultRingSize),
	}
	go s.consume()
	return s
}

// Log enqueues one audit entry. Never blocks the caller.
func (s *AuditService) Log(entry *model.AuditLog) {
	if entry == nil {
		return
	}
	select {
	case s.entries <- entry:
	default:
		logger.Warn("audit queue full, entry dropped", "path", entry.Path)
	}
}

// LogTurn enqueues one chat turn.
func (s *AuditService) LogTurn(turn *model.ChatTurn) {
	if turn == nil {
		return
	}
	select {
	case s.turns <- turn:
	default:
		logger.Warn("audit queue full, chat turn dropped", "client", turn.ClientID)
	}
}

// List reads from the database when available, otherwise from the ring.
func (s *AuditService) List(ctx context.Context, tenantID string, limit int, from, to *time.Time) ([]*model.AuditLog, error) {
	if s.repo != nil {
		return s.repo.List(ctx, tenantID, limit, from, to)
	}
	return s.ringSnapshot(tenantID, limit), nil
}

func (s *AuditService) ListTurns(ctx context.Context, clientID string, limit int) ([]*model.ChatTurn, error) {
	if s.repo == nil {
		return nil, nil
	}
	return s.repo.ListTurns(ctx, clientID, limit)
}

// StartCleanup deletes audit rows older than the retention window once a
// day until ctx is cancelled.
func (s *AuditService) StartCleanup(ctx context.Context, retention time.Duration) {
	if s.repo == nil || retention <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.repo.Cleanup(ctx, retention); err != nil {
					logger.Warn("audit cleanup failed", "error", err.Error())
				}
			}
		}
	}()
}

// Close drains the queues and stops the consumer.
func (s *AuditService) Close() {
	close(s.entries)
	close(s.turns)
	<-s.done
}

func (s *AuditService) consume() {
	defer close(s.done)
	entries, turns := s.entries, s.turns
	for entries != nil || turns != nil {
		select {
		case entry, ok := <-entries:
			if !ok {
				entries = nil
				continue
			}
			s.persist(entry)
		case turn, ok := <-turns:
			if !ok {
				turns = nil
				continue
			}
			s.persistTurn(turn)
		}
	}
}

func (s *AuditService) persist(entry *model.AuditLog) {
	s.remember(entry)
	s.appendFile(entry)
	if s.repo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.repo.Insert(ctx, entry); err != nil {
			logger.Warn("audit db insert failed", "error", err.Error())
		}
	}
}

func (s *AuditService) persistTurn(turn *model.ChatTurn) {
	if s.repo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.repo.InsertTurn(ctx, turn); err != nil {
		logger.Warn("chat turn insert failed", "error", err.Error())
	}
}

func (s *AuditService) remember(entry *model.AuditLog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.ring) < cap(s.ring) {
		s.ring = append(s.ring, entry)
		return
	}
	s.ring[s.next] = entry
	s.next = (s.next + 1) % len(s.ring)
}

func (s *AuditService) ringSnapshot(tenantID string, limit int) []*model.AuditLog {
	if limit <= 0 {
		limit = 100
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.AuditLog, 0, limit)
	// Newest first: walk backwards from the write cursor.
	for i := 0; i < len(s.ring) && len(out) < limit; i++ {
		idx := (s.next - 1 - i + 2*len(s.ring)) % len(s.ring)
		entry := s.ring[idx]
		if entry == nil {
			continue
		}
		if tenantID != "" && entry.TenantID != tenantID {
			continue
		}
		out = append(out, entry)
	}
	return out
}

func (s *AuditService) appendFile(entry *model.AuditLog) {
	if s.logDir == "" {
		return
	}
	if err := os.MkdirAll(s.logDir, 0o755); err != nil {
		logger.Warn("audit log dir", "error", err.Error())
		return
	}
	name := fmt.Sprintf("audit-%s.jsonl", entry.CreatedAt.UTC().Format("2006-01-02"))
	f, err := os.OpenFile(filepath.Join(s.logDir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logger.Warn("audit log open", "error", err.Error())
		return
	}
	defer f.Close()
	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}
	raw = append(raw, '\n')
	if _, err := f.Write(raw); err != nil {
		logger.Warn("audit log write", "error", err.Error())
	}
}
