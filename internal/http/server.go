// Package http exposes the ledger over a JSON API. Authentication is
// delegated to a fronting proxy that sets the identity headers.
package http

import (
	"container/list"
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"clubledger/internal/ledger"
)

// LRU cache with TTL and size-based eviction, used for the hot
// read-only reports.
type lruCache[T any] struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	items   map[string]*list.Element
	lru     *list.List
}

type cacheItem[T any] struct {
	key       string
	data      T
	expiresAt time.Time
}

func newLRUCache[T any](maxSize int, ttl time.Duration) *lruCache[T] {
	return &lruCache[T]{
		maxSize: maxSize,
		ttl:     ttl,
		items:   make(map[string]*list.Element),
		lru:     list.New(),
	}
}

func (c *lruCache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	elem, exists := c.items[key]
	if !exists {
		return zero, false
	}

	item := elem.Value.(*cacheItem[T])
	if time.Now().After(item.expiresAt) {
		c.removeElement(elem)
		return zero, false
	}

	c.lru.MoveToFront(elem)
	return item.data, true
}

func (c *lruCache[T]) Set(key string, data T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item := &cacheItem[T]{
		key:       key,
		data:      data,
		expiresAt: time.Now().Add(c.ttl),
	}

	if elem, exists := c.items[key]; exists {
		elem.Value = item
		c.lru.MoveToFront(elem)
		return
	}

	elem := c.lru.PushFront(item)
	c.items[key] = elem

	if c.lru.Len() > c.maxSize {
		if oldest := c.lru.Back(); oldest != nil {
			c.removeElement(oldest)
		}
	}
}

func (c *lruCache[T]) DeletePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var toRemove []*list.Element
	for elem := c.lru.Front(); elem != nil; elem = elem.Next() {
		item := elem.Value.(*cacheItem[T])
		if len(item.key) >= len(prefix) && item.key[:len(prefix)] == prefix {
			toRemove = append(toRemove, elem)
		}
	}
	for _, elem := range toRemove {
		c.removeElement(elem)
	}
}

func (c *lruCache[T]) removeElement(elem *list.Element) {
	item := elem.Value.(*cacheItem[T])
	delete(c.items, item.key)
	c.lru.Remove(elem)
}

// CleanExpired removes all expired entries.
func (c *lruCache[T]) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	var toRemove []*list.Element
	for elem := c.lru.Front(); elem != nil; elem = elem.Next() {
		item := elem.Value.(*cacheItem[T])
		if now.After(item.expiresAt) {
			toRemove = append(toRemove, elem)
		}
	}
	for _, elem := range toRemove {
		c.removeElement(elem)
	}
	return len(toRemove)
}

type Server struct {
	http.Server
	years         *ledger.YearService
	subscriptions *ledger.SubscriptionService
	records       *ledger.RecordService
	finance       *ledger.FinanceService
	store         ledger.Store
	rateLimiter   *rateLimiter

	balanceCache *lruCache[*ledger.BalanceReport]
	summaryCache *lruCache[*ledger.FinanceSummary]

	stopCacheCleanup chan struct{}
	shutdownOnce     sync.Once
}

// NewServer configures the routes and returns a ready-to-run server.
func NewServer(addr string, years *ledger.YearService, subscriptions *ledger.SubscriptionService, records *ledger.RecordService, finance *ledger.FinanceService, store ledger.Store) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		years:            years,
		subscriptions:    subscriptions,
		records:          records,
		finance:          finance,
		store:            store,
		rateLimiter:      newRateLimiter(),
		balanceCache:     newLRUCache[*ledger.BalanceReport](100, time.Minute),
		summaryCache:     newLRUCache[*ledger.FinanceSummary](100, time.Minute),
		stopCacheCleanup: make(chan struct{}),
	}

	go s.startCacheCleanup()

	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("POST /api/v1/years", s.withSecurityHeaders(s.handleCreateYear))
	mux.HandleFunc("GET /api/v1/years", s.withSecurityHeaders(s.handleListYears))
	mux.HandleFunc("GET /api/v1/years/active", s.withSecurityHeaders(s.handleActiveYear))
	mux.HandleFunc("GET /api/v1/years/{yearID}", s.withSecurityHeaders(s.handleGetYear))
	mux.HandleFunc("PATCH /api/v1/years/{yearID}", s.withSecurityHeaders(s.handleUpdateYear))
	mux.HandleFunc("POST /api/v1/years/{yearID}/close", s.withSecurityHeaders(s.handleCloseYear))
	mux.HandleFunc("POST /api/v1/years/{yearID}/rotate", s.withSecurityHeaders(s.handleRotateYear))
	mux.HandleFunc("GET /api/v1/years/{yearID}/balance", s.withSecurityHeaders(s.handleBalance))
	mux.HandleFunc("GET /api/v1/years/{yearID}/summary", s.withSecurityHeaders(s.handleSummary))

	mux.HandleFunc("GET /api/v1/years/{yearID}/subscriptions", s.withSecurityHeaders(s.handleListSubscriptions))
	mux.HandleFunc("GET /api/v1/years/{yearID}/subscriptions/{memberID}", s.withSecurityHeaders(s.handleGetSubscription))
	mux.HandleFunc("POST /api/v1/years/{yearID}/subscriptions/{memberID}/installments/{number}/toggle", s.withSecurityHeaders(s.handleToggleInstallment))
	mux.HandleFunc("POST /api/v1/years/{yearID}/subscriptions/migrate", s.withSecurityHeaders(s.handleMigrateSubscriptions))
	mux.HandleFunc("GET /api/v1/years/{yearID}/payments", s.withSecurityHeaders(s.handlePaidInstallments))

	mux.HandleFunc("POST /api/v1/years/{yearID}/expenses", s.withSecurityHeaders(s.handleRecordExpense))
	mux.HandleFunc("GET /api/v1/years/{yearID}/expenses", s.withSecurityHeaders(s.handleListExpenses))
	mux.HandleFunc("POST /api/v1/expenses/{expenseID}/approve", s.withSecurityHeaders(s.handleApproveExpense))
	mux.HandleFunc("POST /api/v1/expenses/{expenseID}/reject", s.withSecurityHeaders(s.handleRejectExpense))
	mux.HandleFunc("DELETE /api/v1/expenses/{expenseID}", s.withSecurityHeaders(s.handleDeleteExpense))

	mux.HandleFunc("POST /api/v1/years/{yearID}/donations", s.withSecurityHeaders(s.handleRecordDonation))
	mux.HandleFunc("GET /api/v1/years/{yearID}/donations", s.withSecurityHeaders(s.handleListDonations))
	mux.HandleFunc("DELETE /api/v1/donations/{donationID}", s.withSecurityHeaders(s.handleDeleteDonation))

	mux.HandleFunc("POST /api/v1/years/{yearID}/fees", s.withSecurityHeaders(s.handleRecordMemberFee))
	mux.HandleFunc("GET /api/v1/years/{yearID}/fees", s.withSecurityHeaders(s.handleListMemberFees))
	mux.HandleFunc("GET /api/v1/years/{yearID}/fees/summary", s.withSecurityHeaders(s.handleFeeSummary))
	mux.HandleFunc("DELETE /api/v1/fees/{feeID}", s.withSecurityHeaders(s.handleDeleteMemberFee))

	mux.HandleFunc("GET /api/v1/archive", s.withSecurityHeaders(s.handleArchive))
	mux.HandleFunc("GET /api/v1/archive/{yearID}", s.withSecurityHeaders(s.handleArchiveDetails))
	mux.HandleFunc("POST /api/v1/archive/{yearID}/export", s.withSecurityHeaders(s.handleExportArchive))
	mux.HandleFunc("GET /api/v1/audit", s.withSecurityHeaders(s.handleAuditTrail))

	return s
}

func (s *Server) startCacheCleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			balanceCleaned := s.balanceCache.CleanExpired()
			summaryCleaned := s.summaryCache.CleanExpired()
			if balanceCleaned > 0 || summaryCleaned > 0 {
				slog.Debug("cache cleanup completed",
					"balance_entries_removed", balanceCleaned,
					"summary_entries_removed", summaryCleaned)
			}
		case <-s.stopCacheCleanup:
			return
		}
	}
}

// invalidateReports drops cached reports for a club after a mutation.
func (s *Server) invalidateReports(clubID string) {
	s.balanceCache.DeletePrefix(clubID + ":")
	s.summaryCache.DeletePrefix(clubID + ":")
}

// Shutdown gracefully shuts down the server and its cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.stopCacheCleanup != nil {
			close(s.stopCacheCleanup)
		}
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// withSecurityHeaders adds security headers, rate limiting and request
// logging.
func (s *Server) withSecurityHeaders(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := r.Header.Get("X-Forwarded-For")
		if clientIP == "" {
			clientIP = r.Header.Get("X-Real-IP")
		}
		if clientIP == "" {
			clientIP = r.RemoteAddr
		}

		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		slog.InfoContext(ctx, "request started",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"client_ip", clientIP)

		if r.Method != http.MethodGet && !s.rateLimiter.allow(clientIP) {
			slog.WarnContext(ctx, "rate limit exceeded",
				"client_ip", clientIP,
				"method", r.Method,
				"url", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		slog.InfoContext(ctx, "request completed",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", clientIP)
	}
}

type requestIDKey struct{}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
