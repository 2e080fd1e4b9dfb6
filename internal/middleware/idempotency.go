package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/pipelabs/tradegate/internal/pkg/logger"
)

const HeaderIdempotencyKey = "X-Idempotency-Key"

type IdempotencyRecord struct {
	Status     int       `json:"status"`
	Body       []byte    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
	Processing bool      `json:"processing"`
}

// IdempotencyStore holds response replays keyed by client + idempotency key.
// GetOrLock returns (record, true) on a hit; (nil, false) when the caller
// newly acquired the lock and must run the request.
type IdempotencyStore interface {
	GetOrLock(ctx context.Context, key string) (*IdempotencyRecord, bool)
	Save(ctx context.Context, key string, status int, body []byte)
	Unlock(ctx context.Context, key string)
}

// InMemIdempotencyStore is the single-node fallback when redis is not
// configured. Records live until process restart.
type InMemIdempotencyStore struct {
	mu      sync.RWMutex
	records map[string]*IdempotencyRecord
}

func NewInMemIdempotencyStore() *InMemIdempotencyStore {
	return &InMemIdempotencyStore{records: make(map[string]*IdempotencyRecord)}
}

func (s *InMemIdempotencyStore) GetOrLock(_ context.Context, key string) (*IdempotencyRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[key]; ok {
		return rec, true
	}
	s.records[key] = &IdempotencyRecord{Processing: true, CreatedAt: time.Now()}
	return nil, false
}

func (s *InMemIdempotencyStore) Save(_ context.Context, key string, status int, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = &IdempotencyRecord{
		Status:    status,
		Body:      body,
		CreatedAt: time.Now(),
	}
}

func (s *InMemIdempotencyStore) Unlock(_ context.Context, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
}

// RedisIdempotencyStore shares replay records across gateway instances. The
// lock is a SetNX sentinel; completed responses are stored as JSON under the
// same key with the configured TTL.
type RedisIdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisIdempotencyStore(client *redis.Client, ttl time.Duration) *RedisIdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisIdempotencyStore{client: client, ttl: ttl}
}

func (s *RedisIdempotencyStore) GetOrLock(ctx context.Context, key string) (*IdempotencyRecord, bool) {
	sentinel, _ := json.Marshal(IdempotencyRecord{Processing: true, CreatedAt: time.Now()})
	// Lock window is short: if the first request dies mid-flight the key
	// frees itself instead of wedging the idempotency key forever.
	acquired, err := s.client.SetNX(ctx, s.redisKey(key), sentinel, 2*time.Minute).Result()
	if err != nil {
		logger.Warn("idempotency store unavailable, proceeding without replay", "error", err.Error())
		return nil, false
	}
	if acquired {
		return nil, false
	}

	raw, err := s.client.Get(ctx, s.redisKey(key)).Bytes()
	if err != nil {
		return nil, false
	}
	var rec IdempotencyRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, false
	}
	return &rec, true
}

func (s *RedisIdempotencyStore) Save(ctx context.Context, key string, status int, body []byte) {
	raw, _ := json.Marshal(IdempotencyRecord{Status: status, Body: body, CreatedAt: time.Now()})
	if err := s.client.Set(ctx, s.redisKey(key), raw, s.ttl).Err(); err != nil {
		logger.Warn("idempotency record save failed", "error", err.Error())
	}
}

func (s *RedisIdempotencyStore) Unlock(ctx context.Context, key string) {
	if err := s.client.Del(ctx, s.redisKey(key)).Err(); err != nil {
		logger.Warn("idempotency unlock failed", "error", err.Error())
	}
}

func (s *RedisIdempotencyStore) redisKey(key string) string {
	return "idem:" + key
}

// IdempotencyMiddleware replays the stored response for repeated requests
// carrying the same X-Idempotency-Key. This is how a caller safely retries
// after an indeterminate (timed-out) order placement: the replay returns
// whatever the first attempt produced without touching the execution
// service again.
func IdempotencyMiddleware(store IdempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		idemKey := c.GetHeader(HeaderIdempotencyKey)
		if idemKey == "" {
			c.Next()
			return
		}

		client := ClientFromContext(c)
		if client == nil {
			c.Next()
			return
		}
		fullKey := client.ID + ":" + idemKey
		ctx := c.Request.Context()

		record, hit := store.GetOrLock(ctx, fullKey)
		if hit {
			if record.Processing {
				c.JSON(http.StatusConflict, gin.H{"error": "request in progress"})
				c.Abort()
				return
			}
			c.Data(record.Status, "application/json; charset=utf-8", record.Body)
			c.Abort()
			return
		}

		w := &responseBodyWriter{ResponseWriter: c.Writer}
		c.Writer = w

		c.Next()

		// 5xx responses unlock instead of saving so the caller may retry.
		// 504 is the exception: it marks an indeterminate order placement,
		// which must replay on retry rather than resubmit.
		status := c.Writer.Status()
		if status < 500 || status == http.StatusGatewayTimeout {
			store.Save(ctx, fullKey, status, w.body)
		} else {
			store.Unlock(ctx, fullKey)
		}
	}
}

type responseBodyWriter struct {
	gin.ResponseWriter
	body []byte
}

func (w *responseBodyWriter) Write(b []byte) (int, error) {
	w.body = append(w.body, b...)
	return w.ResponseWriter.Write(b)
}
