package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// User represents a registered user.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	IsSuperuser  bool
	CreatedAt    time.Time
}

// ClubStatus tracks a club through the approval workflow.
type ClubStatus string

const (
	ClubStatusPending  ClubStatus = "pending"
	ClubStatusActive   ClubStatus = "active"
	ClubStatusRejected ClubStatus = "rejected"
)

// Club represents a student club. Clubs are created pending and must be
// approved by a superuser before they become active.
type Club struct {
	ID             int64
	Name           string
	Description    string
	AdminID        int64
	Status         ClubStatus
	RejectedReason *string
	ApprovedAt     *time.Time
	CreatedAt      time.Time
}

// Membership represents a user's membership in a club.
type Membership struct {
	ClubID     int64
	UserID     int64
	IsSubadmin bool
	JoinedAt   time.Time
}

// Message is a persisted chat message. AuthorUsername is resolved from
// the users table when the message is created or read back.
type Message struct {
	ID             int64
	ClubID         int64
	AuthorID       int64
	AuthorUsername string
	Text           string
	CreatedAt      time.Time
}

// Post is an announcement published on a club's board.
type Post struct {
	ID             int64
	ClubID         int64
	AuthorID       int64
	AuthorUsername string
	Content        string
	CreatedAt      time.Time
}

// Event is a scheduled club event.
type Event struct {
	ID          int64
	ClubID      int64
	Title       string
	Description string
	Date        time.Time
	CreatedAt   time.Time
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	CreateUser(ctx context.Context, username, passwordHash string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// SetSuperuser toggles the superuser flag on a user.
	SetSuperuser(ctx context.Context, userID int64, isSuperuser bool) error
}

// ClubStore handles club and membership persistence.
type ClubStore interface {
	// CreateClub creates a new pending club administered by adminID.
	// The admin is added as the first member.
	CreateClub(ctx context.Context, name, description string, adminID int64) (*Club, error)

	// GetClubByID retrieves a club by ID.
	GetClubByID(ctx context.Context, id int64) (*Club, error)

	// ListClubs lists clubs, optionally filtered by status.
	ListClubs(ctx context.Context, status *ClubStatus) ([]*Club, error)

	// ApproveClub marks a pending club active.
	ApproveClub(ctx context.Context, id int64) error

	// RejectClub marks a club rejected with a reason.
	RejectClub(ctx context.Context, id int64, reason string) error

	// AddMember adds a user to a club.
	AddMember(ctx context.Context, clubID, userID int64, isSubadmin bool) error

	// RemoveMember removes a user from a club.
	RemoveMember(ctx context.Context, clubID, userID int64) error

	// IsMember checks whether a user holds a membership record for a club.
	IsMember(ctx context.Context, clubID, userID int64) (bool, error)

	// ListMembers lists the user IDs of a club's members.
	ListMembers(ctx context.Context, clubID int64) ([]int64, error)
}

// MessageStore handles chat message persistence.
type MessageStore interface {
	// CreateMessage persists a chat message and returns its canonical
	// representation with id, author username and created_at filled in.
	// Returns ErrNotFound if the club does not exist.
	CreateMessage(ctx context.Context, clubID, authorID int64, text string) (*Message, error)

	// ListRecentMessages returns up to limit most recent messages for a
	// club, oldest first.
	ListRecentMessages(ctx context.Context, clubID int64, limit int) ([]*Message, error)
}

// PostStore handles club board posts.
type PostStore interface {
	// CreatePost publishes a post on a club's board.
	CreatePost(ctx context.Context, clubID, authorID int64, content string) (*Post, error)

	// ListPosts lists a club's posts, newest first.
	ListPosts(ctx context.Context, clubID int64) ([]*Post, error)
}

// EventStore handles club events.
type EventStore interface {
	// CreateEvent schedules an event for a club.
	CreateEvent(ctx context.Context, clubID int64, title, description string, date time.Time) (*Event, error)

	// ListEvents lists a club's events, soonest first.
	ListEvents(ctx context.Context, clubID int64) ([]*Event, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	ClubStore
	MessageStore
	PostStore
	EventStore

	// Close closes the underlying database connection.
	Close() error
}
