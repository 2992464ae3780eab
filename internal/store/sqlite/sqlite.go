package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/ventihq/clubchat-server/internal/store"
)

// schema is applied on open. Kept idempotent so restarting the server
// against an existing database is safe.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	is_superuser  BOOLEAN NOT NULL DEFAULT 0,
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS clubs (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	name            TEXT NOT NULL,
	description     TEXT NOT NULL DEFAULT '',
	admin_id        INTEGER NOT NULL,
	status          TEXT NOT NULL DEFAULT 'pending',
	rejected_reason TEXT,
	approved_at     DATETIME,
	created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (admin_id) REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS club_memberships (
	club_id     INTEGER NOT NULL,
	user_id     INTEGER NOT NULL,
	is_subadmin BOOLEAN NOT NULL DEFAULT 0,
	joined_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (club_id, user_id),
	FOREIGN KEY (club_id) REFERENCES clubs(id),
	FOREIGN KEY (user_id) REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS messages (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	club_id    INTEGER NOT NULL,
	author_id  INTEGER NOT NULL,
	text       TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (club_id) REFERENCES clubs(id),
	FOREIGN KEY (author_id) REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS posts (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	club_id    INTEGER NOT NULL,
	author_id  INTEGER NOT NULL,
	content    TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (club_id) REFERENCES clubs(id),
	FOREIGN KEY (author_id) REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS events (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	club_id     INTEGER NOT NULL,
	title       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	date        DATETIME NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (club_id) REFERENCES clubs(id)
);

CREATE INDEX IF NOT EXISTS idx_messages_club ON messages(club_id, id);
CREATE INDEX IF NOT EXISTS idx_posts_club ON posts(club_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_events_club ON events(club_id, date);
CREATE INDEX IF NOT EXISTS idx_memberships_user ON club_memberships(user_id);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New opens (creating if needed) a SQLite database at dbPath and applies
// the schema.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// NewWithSetup opens a SQLite database and runs a setup function before
// the schema check. Useful for tests seeding fixtures.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	s, err := New(dbPath)
	if err != nil {
		return nil, err
	}

	if setup != nil {
		if err := setup(s.db); err != nil {
			s.db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

// CreateUser creates a new user with hashed password.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, passwordHash string) (*store.User, error) {
	query := `
		INSERT INTO users (username, password_hash)
		VALUES (?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, username, passwordHash)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*store.User, error) {
	query := `
		SELECT id, username, password_hash, is_superuser, created_at
		FROM users
		WHERE id = ?
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, id))
}

// GetUserByUsername retrieves a user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	query := `
		SELECT id, username, password_hash, is_superuser, created_at
		FROM users
		WHERE username = ?
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, username))
}

func (s *SQLiteStore) scanUser(row *sql.Row) (*store.User, error) {
	var user store.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.IsSuperuser,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}

	return &user, nil
}

// SetSuperuser toggles the superuser flag on a user.
func (s *SQLiteStore) SetSuperuser(ctx context.Context, userID int64, isSuperuser bool) error {
	result, err := s.db.ExecContext(ctx, `UPDATE users SET is_superuser = ? WHERE id = ?`, isSuperuser, userID)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("user: %w", store.ErrNotFound)
	}
	return nil
}

// ==== ClubStore implementation ====

// CreateClub creates a new pending club and enrolls the admin as its
// first member.
func (s *SQLiteStore) CreateClub(ctx context.Context, name, description string, adminID int64) (*store.Club, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO clubs (name, description, admin_id, status)
		VALUES (?, ?, ?, 'pending')
	`, name, description, adminID)
	if err != nil {
		return nil, fmt.Errorf("insert club: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO club_memberships (club_id, user_id, is_subadmin)
		VALUES (?, ?, 0)
	`, id, adminID); err != nil {
		return nil, fmt.Errorf("insert admin membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return s.GetClubByID(ctx, id)
}

// GetClubByID retrieves a club by ID.
func (s *SQLiteStore) GetClubByID(ctx context.Context, id int64) (*store.Club, error) {
	query := `
		SELECT id, name, description, admin_id, status, rejected_reason, approved_at, created_at
		FROM clubs
		WHERE id = ?
	`
	var club store.Club
	var rejectedReason sql.NullString
	var approvedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&club.ID,
		&club.Name,
		&club.Description,
		&club.AdminID,
		&club.Status,
		&rejectedReason,
		&approvedAt,
		&club.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("club: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query club: %w", err)
	}

	if rejectedReason.Valid {
		club.RejectedReason = &rejectedReason.String
	}
	if approvedAt.Valid {
		club.ApprovedAt = &approvedAt.Time
	}

	return &club, nil
}

// ListClubs lists clubs, optionally filtered by status.
func (s *SQLiteStore) ListClubs(ctx context.Context, status *store.ClubStatus) ([]*store.Club, error) {
	query := `
		SELECT id, name, description, admin_id, status, rejected_reason, approved_at, created_at
		FROM clubs
	`
	args := []any{}
	if status != nil {
		query += ` WHERE status = ?`
		args = append(args, *status)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query clubs: %w", err)
	}
	defer rows.Close()

	var clubs []*store.Club
	for rows.Next() {
		var club store.Club
		var rejectedReason sql.NullString
		var approvedAt sql.NullTime
		if err := rows.Scan(
			&club.ID,
			&club.Name,
			&club.Description,
			&club.AdminID,
			&club.Status,
			&rejectedReason,
			&approvedAt,
			&club.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan club: %w", err)
		}
		if rejectedReason.Valid {
			club.RejectedReason = &rejectedReason.String
		}
		if approvedAt.Valid {
			club.ApprovedAt = &approvedAt.Time
		}
		clubs = append(clubs, &club)
	}

	return clubs, rows.Err()
}

// ApproveClub marks a pending club active.
func (s *SQLiteStore) ApproveClub(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE clubs
		SET status = 'active', approved_at = ?, rejected_reason = NULL
		WHERE id = ?
	`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("approve club: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("club: %w", store.ErrNotFound)
	}
	return nil
}

// RejectClub marks a club rejected with a reason.
func (s *SQLiteStore) RejectClub(ctx context.Context, id int64, reason string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE clubs
		SET status = 'rejected', rejected_reason = ?
		WHERE id = ?
	`, reason, id)
	if err != nil {
		return fmt.Errorf("reject club: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("club: %w", store.ErrNotFound)
	}
	return nil
}

// AddMember adds a user to a club. Adding an existing member is a no-op.
func (s *SQLiteStore) AddMember(ctx context.Context, clubID, userID int64, isSubadmin bool) error {
	if _, err := s.GetClubByID(ctx, clubID); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO club_memberships (club_id, user_id, is_subadmin)
		VALUES (?, ?, ?)
		ON CONFLICT (club_id, user_id) DO NOTHING
	`, clubID, userID, isSubadmin)
	if err != nil {
		return fmt.Errorf("insert membership: %w", err)
	}
	return nil
}

// RemoveMember removes a user from a club.
func (s *SQLiteStore) RemoveMember(ctx context.Context, clubID, userID int64) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM club_memberships WHERE club_id = ? AND user_id = ?
	`, clubID, userID)
	if err != nil {
		return fmt.Errorf("delete membership: %w", err)
	}
	return nil
}

// IsMember checks whether a user holds a membership record for a club.
func (s *SQLiteStore) IsMember(ctx context.Context, clubID, userID int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM club_memberships WHERE club_id = ? AND user_id = ?
	`, clubID, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query membership: %w", err)
	}
	return true, nil
}

// ListMembers lists the user IDs of a club's members.
func (s *SQLiteStore) ListMembers(ctx context.Context, clubID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id FROM club_memberships WHERE club_id = ? ORDER BY joined_at
	`, clubID)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	var members []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, id)
	}

	return members, rows.Err()
}

// ==== MessageStore implementation ====

// CreateMessage persists a chat message and returns its canonical
// representation.
func (s *SQLiteStore) CreateMessage(ctx context.Context, clubID, authorID int64, text string) (*store.Message, error) {
	// The club may have vanished between authorization and send.
	if _, err := s.GetClubByID(ctx, clubID); err != nil {
		return nil, err
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (club_id, author_id, text)
		VALUES (?, ?, ?)
	`, clubID, authorID, text)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.getMessageByID(ctx, id)
}

func (s *SQLiteStore) getMessageByID(ctx context.Context, id int64) (*store.Message, error) {
	query := `
		SELECT m.id, m.club_id, m.author_id, u.username, m.text, m.created_at
		FROM messages m
		JOIN users u ON u.id = m.author_id
		WHERE m.id = ?
	`
	var msg store.Message
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&msg.ID,
		&msg.ClubID,
		&msg.AuthorID,
		&msg.AuthorUsername,
		&msg.Text,
		&msg.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("message: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query message: %w", err)
	}

	return &msg, nil
}

// ListRecentMessages returns up to limit most recent messages for a club,
// oldest first.
func (s *SQLiteStore) ListRecentMessages(ctx context.Context, clubID int64, limit int) ([]*store.Message, error) {
	query := `
		SELECT m.id, m.club_id, m.author_id, u.username, m.text, m.created_at
		FROM messages m
		JOIN users u ON u.id = m.author_id
		WHERE m.club_id = ?
		ORDER BY m.id DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, clubID, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*store.Message
	for rows.Next() {
		var msg store.Message
		if err := rows.Scan(
			&msg.ID,
			&msg.ClubID,
			&msg.AuthorID,
			&msg.AuthorUsername,
			&msg.Text,
			&msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse into chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

// ==== PostStore implementation ====

// CreatePost publishes a post on a club's board.
func (s *SQLiteStore) CreatePost(ctx context.Context, clubID, authorID int64, content string) (*store.Post, error) {
	if _, err := s.GetClubByID(ctx, clubID); err != nil {
		return nil, err
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO posts (club_id, author_id, content)
		VALUES (?, ?, ?)
	`, clubID, authorID, content)
	if err != nil {
		return nil, fmt.Errorf("insert post: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	query := `
		SELECT p.id, p.club_id, p.author_id, u.username, p.content, p.created_at
		FROM posts p
		JOIN users u ON u.id = p.author_id
		WHERE p.id = ?
	`
	var post store.Post
	if err := s.db.QueryRowContext(ctx, query, id).Scan(
		&post.ID,
		&post.ClubID,
		&post.AuthorID,
		&post.AuthorUsername,
		&post.Content,
		&post.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("query post: %w", err)
	}

	return &post, nil
}

// ListPosts lists a club's posts, newest first.
func (s *SQLiteStore) ListPosts(ctx context.Context, clubID int64) ([]*store.Post, error) {
	query := `
		SELECT p.id, p.club_id, p.author_id, u.username, p.content, p.created_at
		FROM posts p
		JOIN users u ON u.id = p.author_id
		WHERE p.club_id = ?
		ORDER BY p.created_at DESC, p.id DESC
	`
	rows, err := s.db.QueryContext(ctx, query, clubID)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	var posts []*store.Post
	for rows.Next() {
		var post store.Post
		if err := rows.Scan(
			&post.ID,
			&post.ClubID,
			&post.AuthorID,
			&post.AuthorUsername,
			&post.Content,
			&post.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, &post)
	}

	return posts, rows.Err()
}

// ==== EventStore implementation ====

// CreateEvent schedules an event for a club.
func (s *SQLiteStore) CreateEvent(ctx context.Context, clubID int64, title, description string, date time.Time) (*store.Event, error) {
	if _, err := s.GetClubByID(ctx, clubID); err != nil {
		return nil, err
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO events (club_id, title, description, date)
		VALUES (?, ?, ?, ?)
	`, clubID, title, description, date.UTC())
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	var event store.Event
	if err := s.db.QueryRowContext(ctx, `
		SELECT id, club_id, title, description, date, created_at
		FROM events
		WHERE id = ?
	`, id).Scan(
		&event.ID,
		&event.ClubID,
		&event.Title,
		&event.Description,
		&event.Date,
		&event.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("query event: %w", err)
	}

	return &event, nil
}

// ListEvents lists a club's events, soonest first.
func (s *SQLiteStore) ListEvents(ctx context.Context, clubID int64) ([]*store.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, club_id, title, description, date, created_at
		FROM events
		WHERE club_id = ?
		ORDER BY date, id
	`, clubID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []*store.Event
	for rows.Next() {
		var event store.Event
		if err := rows.Scan(
			&event.ID,
			&event.ClubID,
			&event.Title,
			&event.Description,
			&event.Date,
			&event.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, &event)
	}

	return events, rows.Err()
}
