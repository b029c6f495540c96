package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// OperationType represents the type of operation performed
type OperationType string

const (
	OperationRead   OperationType = "READ"
	OperationUpdate OperationType = "UPDATE"
	OperationDelete OperationType = "DELETE"
)

// ResourceType represents the type of resource being accessed
type ResourceType string

const (
	ResourceProfile ResourceType = "user_profile"
)

// Entry represents an audit log entry
type Entry struct {
	UserID         string
	OperationType  OperationType
	ResourceType   ResourceType
	ResourceID     string
	Timestamp      time.Time
	IPAddress      string
	UserAgent      string
	AdditionalData map[string]any
}

type clientKey struct{}

type client struct {
	ip        string
	userAgent string
}

// WithClient attaches the caller's address and user agent to ctx so entries
// logged further down the call chain carry them
func WithClient(ctx context.Context, ip, userAgent string) context.Context {
	return context.WithValue(ctx, clientKey{}, client{ip: ip, userAgent: userAgent})
}

func clientFrom(ctx context.Context) (client, bool) {
	c, ok := ctx.Value(clientKey{}).(client)
	return c, ok
}

const schema = `CREATE TABLE IF NOT EXISTS audit_logs (
	id BIGSERIAL PRIMARY KEY,
	user_id TEXT NOT NULL,
	operation_type TEXT NOT NULL,
	resource_type TEXT NOT NULL,
	resource_id TEXT,
	timestamp TIMESTAMPTZ NOT NULL,
	ip_address TEXT,
	user_agent TEXT,
	additional_data JSONB
)`

// Logger handles audit logging
type Logger struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewLogger creates a new audit logger
func NewLogger(db *pgxpool.Pool, logger *zap.Logger) *Logger {
	return &Logger{
		db:     db,
		logger: logger,
	}
}

// Migrate creates the audit table when it does not exist
func (l *Logger) Migrate(ctx context.Context) error {
	if _, err := l.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create audit table: %w", err)
	}
	return nil
}

// Log creates an audit log entry
func (l *Logger) Log(ctx context.Context, entry Entry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if c, ok := clientFrom(ctx); ok {
		if entry.IPAddress == "" {
			entry.IPAddress = c.ip
		}
		if entry.UserAgent == "" {
			entry.UserAgent = c.userAgent
		}
	}

	// Log to structured logger first
	l.logger.Info("Audit log entry",
		zap.String("user_id", entry.UserID),
		zap.String("operation", string(entry.OperationType)),
		zap.String("resource_type", string(entry.ResourceType)),
		zap.String("resource_id", entry.ResourceID),
		zap.Time("timestamp", entry.Timestamp),
		zap.String("ip_address", entry.IPAddress),
	)

	var extra []byte
	if len(entry.AdditionalData) > 0 {
		var err error
		if extra, err = json.Marshal(entry.AdditionalData); err != nil {
			return fmt.Errorf("failed to encode audit data: %w", err)
		}
	}

	query := `
		INSERT INTO audit_logs (
			user_id, operation_type, resource_type, resource_id,
			timestamp, ip_address, user_agent, additional_data
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := l.db.Exec(ctx, query,
		entry.UserID,
		string(entry.OperationType),
		string(entry.ResourceType),
		entry.ResourceID,
		entry.Timestamp,
		entry.IPAddress,
		entry.UserAgent,
		extra,
	)
	if err != nil {
		l.logger.Error("Failed to write audit log to database",
			zap.Error(err),
			zap.String("user_id", entry.UserID),
			zap.String("operation", string(entry.OperationType)),
			zap.String("resource_type", string(entry.ResourceType)),
		)
		return err
	}

	return nil
}

// Recent retrieves the newest audit entries of a user
func (l *Logger) Recent(ctx context.Context, userID string, limit int) ([]Entry, error) {
	query := `
		SELECT user_id, operation_type, resource_type, COALESCE(resource_id, ''),
		       timestamp, COALESCE(ip_address, ''), COALESCE(user_agent, ''), additional_data
		FROM audit_logs
		WHERE user_id = $1
		ORDER BY timestamp DESC, id DESC
		LIMIT $2
	`

	rows, err := l.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e     Entry
			op    string
			res   string
			extra []byte
		)
		if err := rows.Scan(&e.UserID, &op, &res, &e.ResourceID, &e.Timestamp, &e.IPAddress, &e.UserAgent, &extra); err != nil {
			l.logger.Error("Failed to scan audit log", zap.Error(err))
			continue
		}
		e.OperationType = OperationType(op)
		e.ResourceType = ResourceType(res)
		if len(extra) > 0 {
			if err := json.Unmarshal(extra, &e.AdditionalData); err != nil {
				l.logger.Warn("Failed to decode audit data", zap.Error(err))
			}
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}
