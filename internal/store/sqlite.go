package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hatchpad/hatchpad/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. Limiting to a single
	// connection serializes all DB access through Go's connection pool,
	// preventing "database is locked" errors from concurrent sessions.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	// Set busy timeout so concurrent writes wait instead of failing immediately
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	// Create migrations tracking table
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	// Sort by filename
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		// Check if already applied
		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Repositories ---

func (s *SQLiteStore) CreateRepository(ctx context.Context, r *models.Repository) error {
	if r.ID == "" {
		r.ID = newULID()
	}
	if r.DefaultBranch == "" {
		r.DefaultBranch = "main"
	}
	if r.GitProvider == "" {
		r.GitProvider = "github"
	}
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO repositories (id, name, url, default_branch, git_provider, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Name, r.URL, r.DefaultBranch, r.GitProvider, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create repository: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetRepository(ctx context.Context, id string) (*models.Repository, error) {
	r := &models.Repository{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, url, default_branch, git_provider, created_at, updated_at
		FROM repositories WHERE id = ?`, id,
	).Scan(&r.ID, &r.Name, &r.URL, &r.DefaultBranch, &r.GitProvider, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("repository %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get repository: %w", err)
	}
	return r, nil
}

func (s *SQLiteStore) GetRepositoryByURL(ctx context.Context, url string) (*models.Repository, error) {
	r := &models.Repository{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, url, default_branch, git_provider, created_at, updated_at
		FROM repositories WHERE url = ?`, url,
	).Scan(&r.ID, &r.Name, &r.URL, &r.DefaultBranch, &r.GitProvider, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("repository %s: %w", url, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get repository by url: %w", err)
	}
	return r, nil
}

func (s *SQLiteStore) ListRepositories(ctx context.Context) ([]*models.Repository, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, url, default_branch, git_provider, created_at, updated_at
		FROM repositories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var repos []*models.Repository
	for rows.Next() {
		r := &models.Repository{}
		if err := rows.Scan(&r.ID, &r.Name, &r.URL, &r.DefaultBranch, &r.GitProvider, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan repository: %w", err)
		}
		repos = append(repos, r)
	}
	return repos, rows.Err()
}

// --- Sandboxes ---

func (s *SQLiteStore) CreateSandbox(ctx context.Context, sb *models.Sandbox) error {
	if sb.ID == "" {
		sb.ID = newULID()
	}
	if sb.Status == "" {
		sb.Status = models.SandboxStatusCreating
	}
	now := time.Now().UTC()
	sb.CreatedAt = now
	sb.UpdatedAt = now
	if sb.LastActiveAt.IsZero() {
		sb.LastActiveAt = now
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sandboxes (id, repository_id, provider_workspace_id, provider_type, status, preview_url, last_active_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sb.ID, sb.RepositoryID, sb.ProviderWorkspaceID, sb.ProviderType,
		string(sb.Status), sb.PreviewURL, sb.LastActiveAt, sb.CreatedAt, sb.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: sandboxes.repository_id") {
			return fmt.Errorf("sandbox already exists for repository %s: %w", sb.RepositoryID, err)
		}
		return fmt.Errorf("create sandbox: %w", err)
	}
	return nil
}

func (s *SQLiteStore) scanSandbox(row *sql.Row) (*models.Sandbox, error) {
	sb := &models.Sandbox{}
	var status string
	err := row.Scan(&sb.ID, &sb.RepositoryID, &sb.ProviderWorkspaceID, &sb.ProviderType,
		&status, &sb.PreviewURL, &sb.LastActiveAt, &sb.CreatedAt, &sb.UpdatedAt)
	if err != nil {
		return nil, err
	}
	sb.Status = models.SandboxStatus(status)
	return sb, nil
}

func (s *SQLiteStore) GetSandbox(ctx context.Context, id string) (*models.Sandbox, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, repository_id, provider_workspace_id, provider_type, status, preview_url, last_active_at, created_at, updated_at
		FROM sandboxes WHERE id = ?`, id)
	sb, err := s.scanSandbox(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("sandbox %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get sandbox: %w", err)
	}
	return sb, nil
}

func (s *SQLiteStore) GetSandboxByRepository(ctx context.Context, repositoryID string) (*models.Sandbox, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, repository_id, provider_workspace_id, provider_type, status, preview_url, last_active_at, created_at, updated_at
		FROM sandboxes WHERE repository_id = ?`, repositoryID)
	sb, err := s.scanSandbox(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("sandbox for repository %s: %w", repositoryID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get sandbox by repository: %w", err)
	}
	return sb, nil
}

func (s *SQLiteStore) UpdateSandbox(ctx context.Context, sb *models.Sandbox) error {
	sb.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`UPDATE sandboxes SET provider_workspace_id=?, provider_type=?, status=?, preview_url=?, last_active_at=?, updated_at=?
		WHERE id=?`,
		sb.ProviderWorkspaceID, sb.ProviderType, string(sb.Status), sb.PreviewURL,
		sb.LastActiveAt, sb.UpdatedAt, sb.ID,
	)
	if err != nil {
		return fmt.Errorf("update sandbox: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("sandbox %s: %w", sb.ID, ErrNotFound)
	}
	return nil
}

// --- Sessions ---

func (s *SQLiteStore) CreateSession(ctx context.Context, sess *models.Session) error {
	if sess.ID == "" {
		sess.ID = newULID()
	}
	if sess.Status == "" {
		sess.Status = models.SessionStatusIdle
	}
	now := time.Now().UTC()
	sess.CreatedAt = now
	sess.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, repository_id, sandbox_id, name, branch_name, status, created_by_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.RepositoryID, sess.SandboxID, sess.Name, sess.BranchName,
		string(sess.Status), sess.CreatedByID, sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	sess := &models.Session{}
	var status string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, repository_id, sandbox_id, name, branch_name, status, created_by_id, created_at, updated_at
		FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.RepositoryID, &sess.SandboxID, &sess.Name, &sess.BranchName,
		&status, &sess.CreatedByID, &sess.CreatedAt, &sess.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	sess.Status = models.SessionStatus(status)
	return sess, nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context, filter SessionListFilter) ([]*models.Session, error) {
	query := `SELECT id, repository_id, sandbox_id, name, branch_name, status, created_by_id, created_at, updated_at FROM sessions`
	var conditions []string
	var args []any

	if filter.RepositoryID != "" {
		conditions = append(conditions, "repository_id = ?")
		args = append(args, filter.RepositoryID)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*models.Session
	for rows.Next() {
		sess := &models.Session{}
		var status string
		if err := rows.Scan(&sess.ID, &sess.RepositoryID, &sess.SandboxID, &sess.Name, &sess.BranchName,
			&status, &sess.CreatedByID, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sess.Status = models.SessionStatus(status)
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func (s *SQLiteStore) UpdateSession(ctx context.Context, sess *models.Session) error {
	sess.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET sandbox_id=?, name=?, branch_name=?, status=?, updated_at=? WHERE id=?`,
		sess.SandboxID, sess.Name, sess.BranchName, string(sess.Status), sess.UpdatedAt, sess.ID,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("session %s: %w", sess.ID, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) UpdateSessionStatus(ctx context.Context, id string, status models.SessionStatus) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status=?, updated_at=? WHERE id=?`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) LinkSessionSandbox(ctx context.Context, sessionID, sandboxID string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET sandbox_id=?, updated_at=? WHERE id=?`,
		sandboxID, time.Now().UTC(), sessionID,
	)
	if err != nil {
		return fmt.Errorf("link session sandbox: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	return nil
}

// --- Messages ---

func (s *SQLiteStore) CreateMessage(ctx context.Context, m *models.Message) error {
	if m.ID == "" {
		m.ID = newULID()
	}
	if m.Type == "" {
		m.Type = models.MessageTypeText
	}
	m.CreatedAt = time.Now().UTC()

	meta := "{}"
	if m.Metadata != nil {
		b, err := json.Marshal(m.Metadata)
		if err != nil {
			return fmt.Errorf("marshal message metadata: %w", err)
		}
		meta = string(b)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, session_id, role, type, content, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.SessionID, string(m.Role), string(m.Type), m.Content, meta, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListMessages(ctx context.Context, sessionID string, limit int) ([]*models.Message, error) {
	query := `SELECT id, session_id, role, type, content, metadata, created_at
		FROM messages WHERE session_id = ? ORDER BY created_at`
	args := []any{sessionID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var messages []*models.Message
	for rows.Next() {
		m := &models.Message{}
		var role, mtype, meta string
		if err := rows.Scan(&m.ID, &m.SessionID, &role, &mtype, &m.Content, &meta, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Role = models.MessageRole(role)
		m.Type = models.MessageType(mtype)
		if meta != "" && meta != "{}" {
			if err := json.Unmarshal([]byte(meta), &m.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal message metadata: %w", err)
			}
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// --- Approvals ---

func (s *SQLiteStore) CreateApproval(ctx context.Context, a *models.Approval) error {
	if a.ID == "" {
		a.ID = newULID()
	}
	if a.Status == "" {
		a.Status = models.ApprovalStatusPending
	}
	a.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO approvals (id, session_id, message_id, status, reviewer_id, comment, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.SessionID, a.MessageID, string(a.Status), a.ReviewerID, a.Comment, a.CreatedAt,
	)
	if err != nil {
		// The partial unique index on (session_id) WHERE status='pending'
		// backs the one-pending-approval-per-session invariant.
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrPendingApprovalExists
		}
		return fmt.Errorf("create approval: %w", err)
	}
	return nil
}

func (s *SQLiteStore) scanApproval(row *sql.Row) (*models.Approval, error) {
	a := &models.Approval{}
	var status string
	var resolvedAt sql.NullTime
	err := row.Scan(&a.ID, &a.SessionID, &a.MessageID, &status, &a.ReviewerID, &a.Comment, &a.CreatedAt, &resolvedAt)
	if err != nil {
		return nil, err
	}
	a.Status = models.ApprovalStatus(status)
	if resolvedAt.Valid {
		a.ResolvedAt = &resolvedAt.Time
	}
	return a, nil
}

func (s *SQLiteStore) GetApproval(ctx context.Context, id string) (*models.Approval, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, message_id, status, reviewer_id, comment, created_at, resolved_at
		FROM approvals WHERE id = ?`, id)
	a, err := s.scanApproval(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("approval %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get approval: %w", err)
	}
	return a, nil
}

func (s *SQLiteStore) GetPendingApproval(ctx context.Context, sessionID string) (*models.Approval, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, message_id, status, reviewer_id, comment, created_at, resolved_at
		FROM approvals WHERE session_id = ? AND status = 'pending'`, sessionID)
	a, err := s.scanApproval(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("pending approval for session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get pending approval: %w", err)
	}
	return a, nil
}

func (s *SQLiteStore) ResolveApproval(ctx context.Context, approvalID string, status models.ApprovalStatus, reviewerID, comment string, sessionStatus models.SessionStatus) (*models.Approval, error) {
	if status != models.ApprovalStatusApproved && status != models.ApprovalStatusRejected {
		return nil, fmt.Errorf("invalid approval resolution: %s", status)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin resolve approval: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	a := &models.Approval{}
	var current string
	var resolvedAt sql.NullTime
	err = tx.QueryRowContext(ctx,
		`SELECT id, session_id, message_id, status, reviewer_id, comment, created_at, resolved_at
		FROM approvals WHERE id = ?`, approvalID,
	).Scan(&a.ID, &a.SessionID, &a.MessageID, &current, &a.ReviewerID, &a.Comment, &a.CreatedAt, &resolvedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("approval %s: %w", approvalID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load approval: %w", err)
	}
	a.Status = models.ApprovalStatus(current)
	if resolvedAt.Valid {
		a.ResolvedAt = &resolvedAt.Time
	}

	// Idempotent against a terminal approval: return the stored record.
	if a.Status != models.ApprovalStatusPending {
		return a, nil
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`UPDATE approvals SET status=?, reviewer_id=?, comment=?, resolved_at=? WHERE id=? AND status='pending'`,
		string(status), reviewerID, comment, now, approvalID,
	); err != nil {
		return nil, fmt.Errorf("resolve approval: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET status=?, updated_at=? WHERE id=?`,
		string(sessionStatus), now, a.SessionID,
	); err != nil {
		return nil, fmt.Errorf("update session on approval: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit resolve approval: %w", err)
	}

	a.Status = status
	a.ReviewerID = reviewerID
	a.Comment = comment
	a.ResolvedAt = &now
	return a, nil
}

// --- Checkpoints ---

func (s *SQLiteStore) CreateCheckpoint(ctx context.Context, cp *models.Checkpoint) error {
	if cp.ID == "" {
		cp.ID = newULID()
	}
	if cp.Type == "" {
		cp.Type = models.CheckpointTypeAuto
	}
	cp.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (id, session_id, sandbox_id, label, type, provider_checkpoint_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		cp.ID, cp.SessionID, cp.SandboxID, cp.Label, string(cp.Type), cp.ProviderCheckpointID, cp.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create checkpoint: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetCheckpoint(ctx context.Context, id string) (*models.Checkpoint, error) {
	cp := &models.Checkpoint{}
	var ctype string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, sandbox_id, label, type, provider_checkpoint_id, created_at
		FROM checkpoints WHERE id = ?`, id,
	).Scan(&cp.ID, &cp.SessionID, &cp.SandboxID, &cp.Label, &ctype, &cp.ProviderCheckpointID, &cp.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("checkpoint %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get checkpoint: %w", err)
	}
	cp.Type = models.CheckpointType(ctype)
	return cp, nil
}

func (s *SQLiteStore) ListCheckpoints(ctx context.Context, sessionID string) ([]*models.Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, sandbox_id, label, type, provider_checkpoint_id, created_at
		FROM checkpoints WHERE session_id = ? ORDER BY created_at DESC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var cps []*models.Checkpoint
	for rows.Next() {
		cp := &models.Checkpoint{}
		var ctype string
		if err := rows.Scan(&cp.ID, &cp.SessionID, &cp.SandboxID, &cp.Label, &ctype, &cp.ProviderCheckpointID, &cp.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		cp.Type = models.CheckpointType(ctype)
		cps = append(cps, cp)
	}
	return cps, rows.Err()
}

// IsNotFound reports whether err represents a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
