package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/prohmpiriya/safeguard-membership/pkg/logger"
)

// AuditAction represents the type of admin action being audited
type AuditAction string

const (
	AuditActionCreate  AuditAction = "create"
	AuditActionUpdate  AuditAction = "update"
	AuditActionDelete  AuditAction = "delete"
	AuditActionInvite  AuditAction = "invite"
	AuditActionRevoke  AuditAction = "revoke"
	AuditActionVerify  AuditAction = "verify"
	AuditActionPublish AuditAction = "publish"
	AuditActionReview  AuditAction = "review"
)

// Context keys for audit data set by handlers
const (
	ContextKeyAuditResourceType = "audit_resource_type"
	ContextKeyAuditResourceID   = "audit_resource_id"
	ContextKeyAuditMetadata     = "audit_metadata"
	contextKeyAuditSkip         = "audit_skip"
)

// AuditEntry represents a single audit log entry
type AuditEntry struct {
	ID           string                 `json:"id"`
	UserID       string                 `json:"user_id,omitempty"`
	UserEmail    string                 `json:"user_email,omitempty"`
	UserRole     string                 `json:"user_role,omitempty"`
	Action       AuditAction            `json:"action"`
	ResourceType string                 `json:"resource_type"`
	ResourceID   string                 `json:"resource_id,omitempty"`
	Method       string                 `json:"method"`
	Path         string                 `json:"path"`
	Status       int                    `json:"status"`
	IPAddress    string                 `json:"ip_address,omitempty"`
	RequestID    string                 `json:"request_id,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}

// AuditSink persists batches of audit entries
type AuditSink interface {
	WriteBatch(ctx context.Context, entries []*AuditEntry) error
}

// AuditConfig holds configuration for the audit middleware
type AuditConfig struct {
	Sink AuditSink
	// BufferSize is the size of the async audit buffer (default: 256)
	BufferSize int
	// FlushInterval is how often to flush the buffer (default: 5 seconds)
	FlushInterval time.Duration
	// BatchSize is the maximum number of entries written at once (default: 50)
	BatchSize int
	// SkipMethods is a list of HTTP methods to skip (default: GET, HEAD, OPTIONS)
	SkipMethods []string
}

// DefaultAuditConfig returns default configuration
func DefaultAuditConfig(sink AuditSink) *AuditConfig {
	return &AuditConfig{
		Sink:          sink,
		BufferSize:    256,
		FlushInterval: 5 * time.Second,
		BatchSize:     50,
		SkipMethods:   []string{http.MethodGet, http.MethodHead, http.MethodOptions},
	}
}

// AuditLogger buffers audit entries and writes them in the background
type AuditLogger struct {
	config    *AuditConfig
	buffer    chan *AuditEntry
	wg        sync.WaitGroup
	closeOnce sync.Once
	log       *logger.Logger
}

// NewAuditLogger creates a new audit logger and starts its writer
func NewAuditLogger(config *AuditConfig, log *logger.Logger) *AuditLogger {
	if config.BufferSize <= 0 {
		config.BufferSize = 256
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = 5 * time.Second
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 50
	}
	if log == nil {
		log = logger.NewNop()
	}

	al := &AuditLogger{
		config: config,
		buffer: make(chan *AuditEntry, config.BufferSize),
		log:    log,
	}

	al.wg.Add(1)
	go al.worker()

	return al
}

// Log adds an audit entry to the buffer without blocking
func (al *AuditLogger) Log(entry *AuditEntry) {
	select {
	case al.buffer <- entry:
	default:
		al.log.Warn("audit buffer full, dropping entry",
			zap.String("action", string(entry.Action)),
			zap.String("path", entry.Path),
		)
	}
}

// Close flushes pending entries and stops the writer
func (al *AuditLogger) Close() error {
	al.closeOnce.Do(func() {
		close(al.buffer)
		al.wg.Wait()
	})
	return nil
}

func (al *AuditLogger) worker() {
	defer al.wg.Done()

	ticker := time.NewTicker(al.config.FlushInterval)
	defer ticker.Stop()

	batch := make([]*AuditEntry, 0, al.config.BatchSize)
	for {
		select {
		case entry, ok := <-al.buffer:
			if !ok {
				al.flush(batch)
				return
			}
			batch = append(batch, entry)
			if len(batch) >= al.config.BatchSize {
				al.flush(batch)
				batch = make([]*AuditEntry, 0, al.config.BatchSize)
			}
		case <-ticker.C:
			if len(batch) > 0 {
				al.flush(batch)
				batch = make([]*AuditEntry, 0, al.config.BatchSize)
			}
		}
	}
}

func (al *AuditLogger) flush(entries []*AuditEntry) {
	if len(entries) == 0 || al.config.Sink == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Audit writes never block the request path
	if err := al.config.Sink.WriteBatch(ctx, entries); err != nil {
		al.log.Error("failed to write audit entries", zap.Int("count", len(entries)), zap.Error(err))
	}
}

// PostgresAuditSink writes audit entries to the audit_logs table
type PostgresAuditSink struct {
	pool *pgxpool.Pool
}

// NewPostgresAuditSink creates a PostgreSQL-backed audit sink
func NewPostgresAuditSink(pool *pgxpool.Pool) *PostgresAuditSink {
	return &PostgresAuditSink{pool: pool}
}

// WriteBatch inserts entries using a single pgx batch round trip
func (s *PostgresAuditSink) WriteBatch(ctx context.Context, entries []*AuditEntry) error {
	const query = `
		INSERT INTO audit_logs (
			id, user_id, user_email, user_role, action, resource_type, resource_id,
			method, path, status, ip_address, request_id, metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	batch := &pgx.Batch{}
	for _, e := range entries {
		metadata, err := json.Marshal(e.Metadata)
		if err != nil || string(metadata) == "null" {
			metadata = []byte("{}")
		}
		batch.Queue(query,
			e.ID, e.UserID, e.UserEmail, e.UserRole, string(e.Action), e.ResourceType, e.ResourceID,
			e.Method, e.Path, e.Status, e.IPAddress, e.RequestID, metadata, e.CreatedAt,
		)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range entries {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to insert audit entry: %w", err)
		}
	}
	return nil
}

// MemoryAuditSink keeps audit entries in memory, used by tests and local runs
type MemoryAuditSink struct {
	mu      sync.Mutex
	entries []*AuditEntry
}

// NewMemoryAuditSink creates an in-memory audit sink
func NewMemoryAuditSink() *MemoryAuditSink {
	return &MemoryAuditSink{}
}

// WriteBatch appends entries
func (s *MemoryAuditSink) WriteBatch(ctx context.Context, entries []*AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entries...)
	return nil
}

// Entries returns a copy of the written entries
func (s *MemoryAuditSink) Entries() []*AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*AuditEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// AuditMiddleware records mutating admin requests
func AuditMiddleware(al *AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, method := range al.config.SkipMethods {
			if c.Request.Method == method {
				c.Next()
				return
			}
		}

		startTime := time.Now()
		c.Next()

		if skip, exists := c.Get(contextKeyAuditSkip); exists {
			if b, ok := skip.(bool); ok && b {
				return
			}
		}

		resourceType, resourceID := resourceFromPath(c.Request.URL.Path)
		entry := &AuditEntry{
			ID:           uuid.New().String(),
			Action:       actionFor(c.Request.Method, c.Request.URL.Path),
			ResourceType: resourceType,
			ResourceID:   resourceID,
			Method:       c.Request.Method,
			Path:         c.Request.URL.Path,
			Status:       c.Writer.Status(),
			IPAddress:    c.ClientIP(),
			RequestID:    c.GetHeader(HeaderRequestID),
			CreatedAt:    startTime,
		}
		entry.UserID, _ = GetUserID(c)
		entry.UserEmail, _ = GetEmail(c)
		entry.UserRole, _ = GetRole(c)

		if rt, ok := getString(c, ContextKeyAuditResourceType); ok && rt != "" {
			entry.ResourceType = rt
		}
		if rid, ok := getString(c, ContextKeyAuditResourceID); ok && rid != "" {
			entry.ResourceID = rid
		}
		if meta, exists := c.Get(ContextKeyAuditMetadata); exists {
			if m, ok := meta.(map[string]interface{}); ok {
				entry.Metadata = m
			}
		}

		al.Log(entry)
	}
}

// actionFor maps an admin route to the action it performs
func actionFor(method, path string) AuditAction {
	p := strings.ToLower(path)
	switch {
	case strings.HasSuffix(p, "/revoke"):
		return AuditActionRevoke
	case strings.HasSuffix(p, "/verify"):
		return AuditActionVerify
	case strings.HasSuffix(p, "/publish"):
		return AuditActionPublish
	case strings.HasSuffix(p, "/status"):
		return AuditActionReview
	case strings.Contains(p, "/invites") && method == http.MethodPost:
		return AuditActionInvite
	}

	switch method {
	case http.MethodPost:
		return AuditActionCreate
	case http.MethodPut, http.MethodPatch:
		return AuditActionUpdate
	case http.MethodDelete:
		return AuditActionDelete
	default:
		return AuditActionUpdate
	}
}

// resourceFromPath extracts the resource type and id from an admin path.
// /api/v1/admin/invites/abc/revoke -> ("invite", "abc")
func resourceFromPath(path string) (string, string) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	i := 0
	for i < len(parts) && (parts[i] == "api" || parts[i] == "admin" || isVersion(parts[i])) {
		i++
	}
	if i >= len(parts) {
		return "unknown", ""
	}

	resourceType := strings.TrimSuffix(parts[i], "s")
	resourceID := ""
	if i+1 < len(parts) {
		resourceID = parts[i+1]
	}
	return resourceType, resourceID
}

func isVersion(s string) bool {
	if len(s) < 2 || s[0] != 'v' {
		return false
	}
	for _, r := range s[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// SetAuditResource overrides the resource recorded for the current request
func SetAuditResource(c *gin.Context, resourceType, resourceID string) {
	c.Set(ContextKeyAuditResourceType, resourceType)
	c.Set(ContextKeyAuditResourceID, resourceID)
}

// SetAuditMetadata sets additional metadata for audit logging
func SetAuditMetadata(c *gin.Context, metadata map[string]interface{}) {
	c.Set(ContextKeyAuditMetadata, metadata)
}

// SkipAudit marks the current request to skip audit logging
func SkipAudit(c *gin.Context) {
	c.Set(contextKeyAuditSkip, true)
}
