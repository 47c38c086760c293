package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/eddb-ingest/internal/store"
)

// AuditAction represents the type of action being audited.
type AuditAction string

const (
	ActionDownload AuditAction = "download"
	ActionBulkRun  AuditAction = "bulk_run"
)

// AuditSeverity represents the severity level of an audit entry.
type AuditSeverity string

const (
	SeverityMedium AuditSeverity = "medium"
	SeverityHigh   AuditSeverity = "high"
)

// DefaultAuditLimit is the page size of AuditLog when none is given.
const DefaultAuditLimit = 100

// AuditEntry records one accepted ingestion request. Outcome is the state
// the request reached when it returned: "started", "done", "error" or an
// error code for rejected requests.
type AuditEntry struct {
	ID        string        `json:"id"`
	Action    AuditAction   `json:"action"`
	Severity  AuditSeverity `json:"severity"`
	Kind      Kind          `json:"kind,omitempty"`
	Principal string        `json:"principal"`
	IPAddress string        `json:"ipAddress,omitempty"`
	UserAgent string        `json:"userAgent,omitempty"`
	JobID     string        `json:"jobId,omitempty"`
	RunID     string        `json:"runId,omitempty"`
	Outcome   string        `json:"outcome"`
	CreatedAt time.Time     `json:"createdAt"`
}

// AuditSink stores audit entries. List returns the newest entries first.
type AuditSink interface {
	Record(ctx context.Context, e AuditEntry) error
	List(ctx context.Context, limit int) ([]AuditEntry, error)
}

func determineSeverity(action AuditAction) AuditSeverity {
	if action == ActionBulkRun {
		return SeverityHigh
	}
	return SeverityMedium
}

// newAuditEntry fills the caller details from ctx.
func newAuditEntry(ctx context.Context, action AuditAction, p Principal) AuditEntry {
	return AuditEntry{
		ID:        uuid.NewString(),
		Action:    action,
		Severity:  determineSeverity(action),
		Principal: p.Name,
		IPAddress: GetIPAddressFromContext(ctx),
		UserAgent: GetUserAgentFromContext(ctx),
		CreatedAt: time.Now().UTC(),
	}
}

// MemoryAudit keeps the most recent entries in process.
type MemoryAudit struct {
	mu      sync.Mutex
	max     int
	entries []AuditEntry // oldest first
}

// NewMemoryAudit keeps up to max entries.
func NewMemoryAudit(max int) *MemoryAudit {
	if max <= 0 {
		max = DefaultAuditLimit
	}
	return &MemoryAudit{max: max}
}

func (m *MemoryAudit) Record(_ context.Context, e AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = append(m.entries, e)
	if over := len(m.entries) - m.max; over > 0 {
		m.entries = append([]AuditEntry(nil), m.entries[over:]...)
	}
	return nil
}

func (m *MemoryAudit) List(_ context.Context, limit int) ([]AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if limit <= 0 || limit > len(m.entries) {
		limit = len(m.entries)
	}
	out := make([]AuditEntry, 0, limit)
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.entries[i])
	}
	return out, nil
}

// PostgresAudit writes entries to the ingest_audit_log table.
type PostgresAudit struct {
	db store.DBTX
}

// NewPostgresAudit creates a sink over db.
func NewPostgresAudit(db store.DBTX) *PostgresAudit {
	return &PostgresAudit{db: db}
}

const insertAuditSQL = `INSERT INTO ingest_audit_log
    (id, action, severity, kind, principal, ip_address, user_agent, job_id, run_id, outcome, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

const listAuditSQL = `SELECT id, action, severity, kind, principal, ip_address, user_agent, job_id, run_id, outcome, created_at
FROM ingest_audit_log
ORDER BY created_at DESC
LIMIT $1`

func (p *PostgresAudit) Record(ctx context.Context, e AuditEntry) error {
	id, err := uuid.Parse(e.ID)
	if err != nil {
		return fmt.Errorf("audit entry id: %w", err)
	}

	_, err = p.db.Exec(ctx, insertAuditSQL,
		pgtype.UUID{Bytes: id, Valid: true},
		string(e.Action),
		string(e.Severity),
		toPgText(string(e.Kind)),
		e.Principal,
		toPgText(e.IPAddress),
		toPgText(e.UserAgent),
		toPgText(e.JobID),
		toPgText(e.RunID),
		e.Outcome,
		e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (p *PostgresAudit) List(ctx context.Context, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = DefaultAuditLimit
	}

	rows, err := p.db.Query(ctx, listAuditSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var (
			e                          AuditEntry
			id                         pgtype.UUID
			kind, ip, ua, jobID, runID pgtype.Text
			action, severity           string
		)
		if err := rows.Scan(&id, &action, &severity, &kind, &e.Principal, &ip, &ua, &jobID, &runID, &e.Outcome, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.ID = uuid.UUID(id.Bytes).String()
		e.Action = AuditAction(action)
		e.Severity = AuditSeverity(severity)
		e.Kind = Kind(kind.String)
		e.IPAddress = ip.String
		e.UserAgent = ua.String
		e.JobID = jobID.String
		e.RunID = runID.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func toPgText(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}
