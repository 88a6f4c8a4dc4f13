package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shamandhungel-voodoo/SyncScholars-backend/internal/models"
)

// ErrNoRows is returned by lookups that find nothing; callers translate it
// into their own not-found error.
var ErrNoRows = errors.New("no rows")

// Postgres persists groups, membership, chat, tasks and timer snapshots.
// It backs both the fire-and-forget Queue and the synchronous group/user
// services.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// --- Adapter (consumed via Queue) ---

func (p *Postgres) AppendMessage(ctx context.Context, msg models.Message) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO messages (id, group_id, sender_id, sender_name, content, kind, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`,
		msg.ID, msg.GroupID, nullable(msg.SenderID), msg.SenderName, msg.Content, msg.Kind, msg.Timestamp)
	return err
}

func (p *Postgres) UpsertTask(ctx context.Context, groupID string, task models.Task) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO tasks (id, group_id, text, completed, created_by, assignees, due_date, priority, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			text = EXCLUDED.text,
			completed = EXCLUDED.completed,
			assignees = EXCLUDED.assignees,
			due_date = EXCLUDED.due_date,
			priority = EXCLUDED.priority`,
		task.ID, groupID, task.Text, task.Completed, nullable(task.CreatedBy),
		task.Assignees, task.DueDate, task.Priority, task.CreatedAt)
	return err
}

func (p *Postgres) DeleteTask(ctx context.Context, groupID, taskID string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1 AND group_id = $2`, taskID, groupID)
	return err
}

func (p *Postgres) SnapshotTimer(ctx context.Context, groupID string, snap models.TimerSnapshot) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE groups SET
			timer_status = $2,
			timer_mode = $3,
			timer_time_left = $4,
			timer_cycles = $5,
			updated_at = now()
		WHERE id = $1`,
		groupID, snap.Status, snap.Mode, snap.TimeLeft, snap.CyclesCompleted)
	return err
}

// --- Groups ---

func (p *Postgres) CreateGroup(ctx context.Context, g models.Group) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO groups (id, code, name, description, created_by, is_private,
			max_members, study_duration, break_duration, auto_start_timer, require_focus_mode,
			timer_status, timer_mode, timer_time_left, timer_cycles, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		g.ID, g.Code, g.Name, g.Description, g.CreatedBy, g.IsPrivate,
		g.Settings.MaxMembers, g.Settings.StudyDurationSeconds, g.Settings.BreakDurationSeconds,
		g.Settings.AutoStartTimer, g.Settings.RequireFocusMode,
		models.TimerIdle, models.TimerStudy, g.Settings.StudyDurationSeconds, 0, g.CreatedAt)
	return err
}

func (p *Postgres) GroupByCode(ctx context.Context, code string) (*models.Group, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT id, code, name, description, created_by, is_private,
			max_members, study_duration, break_duration, auto_start_timer, require_focus_mode, created_at
		FROM groups WHERE code = $1`, code)
	return scanGroup(row)
}

func (p *Postgres) GroupCodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM groups WHERE code = $1)`, code).Scan(&exists)
	return exists, err
}

func (p *Postgres) GroupsForUser(ctx context.Context, userID string) ([]models.Group, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT g.id, g.code, g.name, g.description, g.created_by, g.is_private,
			g.max_members, g.study_duration, g.break_duration, g.auto_start_timer, g.require_focus_mode, g.created_at
		FROM groups g
		JOIN group_members m ON m.group_id = g.id
		WHERE m.user_id = $1
		ORDER BY g.created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []models.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, *g)
	}
	return groups, rows.Err()
}

// AddMember records durable membership. Re-joining refreshes the username
// instead of duplicating the row. Returns true when the membership is new.
func (p *Postgres) AddMember(ctx context.Context, groupID, userID, username string, host bool) (bool, error) {
	// xmax = 0 distinguishes a fresh insert from a conflict-update.
	var isNew bool
	err := p.pool.QueryRow(ctx, `
		INSERT INTO group_members (group_id, user_id, username, is_host, joined_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (group_id, user_id) DO UPDATE SET username = EXCLUDED.username
		RETURNING xmax = 0`,
		groupID, userID, username, host).Scan(&isNew)
	if err != nil {
		return false, err
	}
	return isNew, nil
}

func (p *Postgres) MemberCount(ctx context.Context, groupID string) (int, error) {
	var n int
	err := p.pool.QueryRow(ctx, `SELECT count(*) FROM group_members WHERE group_id = $1`, groupID).Scan(&n)
	return n, err
}

func (p *Postgres) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM group_members WHERE group_id = $1 AND user_id = $2)`,
		groupID, userID).Scan(&exists)
	return exists, err
}

// --- Users ---

func (p *Postgres) CreateUser(ctx context.Context, u models.User) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO users (id, username, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		u.ID, u.Username, u.Email, u.PasswordHash, u.CreatedAt)
	return err
}

func (p *Postgres) UserByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	err := p.pool.QueryRow(ctx, `
		SELECT id, username, email, password_hash, created_at FROM users WHERE username = $1`,
		username).Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", username, ErrNoRows)
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (p *Postgres) UsernameTaken(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)`, username).Scan(&exists)
	return exists, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGroup(row rowScanner) (*models.Group, error) {
	var g models.Group
	err := row.Scan(&g.ID, &g.Code, &g.Name, &g.Description, &g.CreatedBy, &g.IsPrivate,
		&g.Settings.MaxMembers, &g.Settings.StudyDurationSeconds, &g.Settings.BreakDurationSeconds,
		&g.Settings.AutoStartTimer, &g.Settings.RequireFocusMode, &g.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoRows
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
