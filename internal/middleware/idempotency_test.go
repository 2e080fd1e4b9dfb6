package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/pipelabs/tradegate/internal/model"
)

func idemRouter(store IdempotencyStore) (*gin.Engine, *int) {
	gin.SetMode(gin.TestMode)
	hits := 0
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(ContextClientKey, &model.Client{ID: "client-1"})
	})
	r.Use(IdempotencyMiddleware(store))
	r.POST("/orders", func(c *gin.Context) {
		hits++
		c.JSON(http.StatusOK, gin.H{"order_id": "o-" + strconv.Itoa(hits)})
	})
	return r, &hits
}

func TestIdempotencyReplaysResponse(t *testing.T) {
	router, hits := idemRouter(NewInMemIdempotencyStore())

	first := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/orders", nil)
	req.Header.Set(HeaderIdempotencyKey, "retry-1")
	router.ServeHTTP(first, req)

	second := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodPost, "/orders", nil)
	req2.Header.Set(HeaderIdempotencyKey, "retry-1")
	router.ServeHTTP(second, req2)

	if *hits != 1 {
		t.Fatalf("handler ran %d times, want 1", *hits)
	}
	if first.Body.String() != second.Body.String() {
		t.Fatalf("replay mismatch: %s vs %s", first.Body.String(), second.Body.String())
	}
}

func TestIdempotencyDistinctKeys(t *testing.T) {
	router, hits := idemRouter(NewInMemIdempotencyStore())

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/orders", nil)
		req.Header.Set(HeaderIdempotencyKey, "key-"+strconv.Itoa(i))
		router.ServeHTTP(rec, req)
	}
	if *hits != 2 {
		t.Fatalf("handler ran %d times, want 2", *hits)
	}
}

func TestIdempotencyReplaysIndeterminateTimeout(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hits := 0
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(ContextClientKey, &model.Client{ID: "client-1"})
	})
	r.Use(IdempotencyMiddleware(NewInMemIdempotencyStore()))
	r.POST("/orders", func(c *gin.Context) {
		hits++
		c.JSON(http.StatusGatewayTimeout, gin.H{"state": "indeterminate"})
	})

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/orders", nil)
		req.Header.Set(HeaderIdempotencyKey, "timeout-1")
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusGatewayTimeout {
			t.Fatalf("attempt %d: status = %d", i, rec.Code)
		}
	}
	if hits != 1 {
		t.Fatalf("handler ran %d times, want 1: indeterminate placements must never resubmit", hits)
	}
}

func TestIdempotencyUnlocksOnServerError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hits := 0
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(ContextClientKey, &model.Client{ID: "client-1"})
	})
	r.Use(IdempotencyMiddleware(NewInMemIdempotencyStore()))
	r.POST("/orders", func(c *gin.Context) {
		hits++
		c.JSON(http.StatusInternalServerError, gin.H{"error": "boom"})
	})

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/orders", nil)
		req.Header.Set(HeaderIdempotencyKey, "err-1")
		r.ServeHTTP(rec, req)
	}
	if hits != 2 {
		t.Fatalf("handler ran %d times, want 2: a 500 must not be replayed", hits)
	}
}

func TestIdempotencyWithoutHeaderPassesThrough(t *testing.T) {
	router, hits := idemRouter(NewInMemIdempotencyStore())

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/orders", nil))
	}
	if *hits != 2 {
		t.Fatalf("handler ran %d times, want 2", *hits)
	}
}
