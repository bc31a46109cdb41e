package domain

import (
	"time"

	"gorm.io/gorm"

	"github.com/weiawesome/focus-room/pkg/database"
)

// UserModel is the GORM model for users table.
type UserModel struct {
	ID            string               `gorm:"type:varchar(36);primaryKey"`
	Email         string               `gorm:"type:varchar(255);uniqueIndex;not null"`
	Username      string               `gorm:"type:varchar(50);uniqueIndex;not null"`
	DisplayName   string               `gorm:"type:varchar(100)"`
	PasswordHash  string               `gorm:"type:varchar(255)"`
	Tier          string               `gorm:"type:varchar(20);not null;default:'free'"`
	Roles         database.StringArray `gorm:"type:text"`
	OIDCSubject   *string              `gorm:"column:oidc_subject;type:varchar(255);uniqueIndex"`
	AvatarObjects *AvatarObjects       `gorm:"type:text;serializer:json"`
	Theme         string               `gorm:"type:varchar(20);not null;default:'system'"`
	CreatedAt     time.Time            `gorm:"autoCreateTime"`
	UpdatedAt     time.Time            `gorm:"autoUpdateTime"`
	DeletedAt     gorm.DeletedAt       `gorm:"index"`
}

// TableName specifies the table name for UserModel.
func (UserModel) TableName() string {
	return "users"
}

// ToDomain converts UserModel to domain User.
func (m *UserModel) ToDomain() *User {
	u := &User{
		ID:            m.ID,
		Email:         m.Email,
		Username:      m.Username,
		DisplayName:   m.DisplayName,
		PasswordHash:  m.PasswordHash,
		Tier:          m.Tier,
		Roles:         []string(m.Roles),
		AvatarObjects: m.AvatarObjects,
		Preferences:   Preferences{Theme: m.Theme},
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
	if m.OIDCSubject != nil {
		u.OIDCSubject = *m.OIDCSubject
	}
	return u
}

// UserToModel converts domain User to UserModel.
func UserToModel(u *User) *UserModel {
	m := &UserModel{
		ID:            u.ID,
		Email:         u.Email,
		Username:      u.Username,
		DisplayName:   u.DisplayName,
		PasswordHash:  u.PasswordHash,
		Tier:          u.Tier,
		Roles:         database.StringArray(u.Roles),
		AvatarObjects: u.AvatarObjects,
		Theme:         u.Preferences.Theme,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
	if m.Theme == "" {
		m.Theme = ThemeSystem
	}
	// NULL keeps the unique index from colliding on password accounts.
	if u.OIDCSubject != "" {
		sub := u.OIDCSubject
		m.OIDCSubject = &sub
	}
	return m
}

// FriendshipModel is the GORM model for the friendships table.
// The pair index covers one direction; the repository checks both.
type FriendshipModel struct {
	ID          string     `gorm:"type:varchar(36);primaryKey"`
	RequesterID string     `gorm:"type:varchar(36);not null;uniqueIndex:idx_friendship_pair"`
	AddresseeID string     `gorm:"type:varchar(36);not null;uniqueIndex:idx_friendship_pair;index"`
	Status      string     `gorm:"type:varchar(20);not null;index"`
	CreatedAt   time.Time  `gorm:"autoCreateTime"`
	RespondedAt *time.Time
}

func (FriendshipModel) TableName() string { return "friendships" }

func (m *FriendshipModel) ToDomain() *Friendship {
	return &Friendship{
		ID:          m.ID,
		RequesterID: m.RequesterID,
		AddresseeID: m.AddresseeID,
		Status:      FriendshipStatus(m.Status),
		CreatedAt:   m.CreatedAt,
		RespondedAt: m.RespondedAt,
	}
}

func FriendshipToModel(f *Friendship) *FriendshipModel {
	return &FriendshipModel{
		ID:          f.ID,
		RequesterID: f.RequesterID,
		AddresseeID: f.AddresseeID,
		Status:      string(f.Status),
		CreatedAt:   f.CreatedAt,
		RespondedAt: f.RespondedAt,
	}
}

// RoomModel is the GORM model for rooms table.
type RoomModel struct {
	ID              string         `gorm:"type:varchar(36);primaryKey"`
	Code            string         `gorm:"type:varchar(16);uniqueIndex;not null"`
	OwnerID         string         `gorm:"type:varchar(36);index;not null"`
	OwnerUsername   string         `gorm:"type:varchar(50);not null"`
	Title           string         `gorm:"type:varchar(200);not null"`
	Private         bool           `gorm:"not null;default:false;index"`
	Status          string         `gorm:"type:varchar(20);index;not null;default:'active'"`
	MaxParticipants int            `gorm:"not null"`
	CreatedAt       time.Time      `gorm:"autoCreateTime"`
	ClosedAt        *time.Time
	DeletedAt       gorm.DeletedAt `gorm:"index"`
}

// TableName specifies the table name for RoomModel.
func (RoomModel) TableName() string {
	return "rooms"
}

// ToDomain converts RoomModel to domain Room.
func (m *RoomModel) ToDomain() *Room {
	return &Room{
		ID:              m.ID,
		Code:            m.Code,
		OwnerID:         m.OwnerID,
		OwnerUsername:   m.OwnerUsername,
		Title:           m.Title,
		Private:         m.Private,
		Status:          RoomStatus(m.Status),
		MaxParticipants: m.MaxParticipants,
		CreatedAt:       m.CreatedAt,
		ClosedAt:        m.ClosedAt,
	}
}

// RoomToModel converts domain Room to RoomModel.
func RoomToModel(r *Room) *RoomModel {
	return &RoomModel{
		ID:              r.ID,
		Code:            r.Code,
		OwnerID:         r.OwnerID,
		OwnerUsername:   r.OwnerUsername,
		Title:           r.Title,
		Private:         r.Private,
		Status:          string(r.Status),
		MaxParticipants: r.MaxParticipants,
		CreatedAt:       r.CreatedAt,
		ClosedAt:        r.ClosedAt,
	}
}

// SessionModel is the GORM model for the meeting_sessions table.
type SessionModel struct {
	ID              string    `gorm:"type:varchar(36);primaryKey"`
	UserID          string    `gorm:"type:varchar(36);not null;index:idx_session_user_joined,priority:1"`
	RoomID          string    `gorm:"type:varchar(64);not null;index"`
	RoomTitle       string    `gorm:"type:varchar(200)"`
	JoinedAt        time.Time `gorm:"not null;index:idx_session_user_joined,priority:2"`
	DurationSeconds int       `gorm:"not null"`
	Private         bool      `gorm:"not null;default:false"`
	CreatedAt       time.Time `gorm:"autoCreateTime"`
}

func (SessionModel) TableName() string { return "meeting_sessions" }

func (m *SessionModel) ToDomain() *MeetingSession {
	return &MeetingSession{
		ID:              m.ID,
		UserID:          m.UserID,
		RoomID:          m.RoomID,
		RoomTitle:       m.RoomTitle,
		JoinedAt:        m.JoinedAt,
		DurationSeconds: m.DurationSeconds,
		Private:         m.Private,
		CreatedAt:       m.CreatedAt,
	}
}

func SessionToModel(s *MeetingSession) *SessionModel {
	return &SessionModel{
		ID:              s.ID,
		UserID:          s.UserID,
		RoomID:          s.RoomID,
		RoomTitle:       s.RoomTitle,
		JoinedAt:        s.JoinedAt,
		DurationSeconds: s.DurationSeconds,
		Private:         s.Private,
		CreatedAt:       s.CreatedAt,
	}
}

// TodoModel is the GORM model for the todos table.
type TodoModel struct {
	ID          string    `gorm:"type:varchar(36);primaryKey"`
	UserID      string    `gorm:"type:varchar(36);not null;index"`
	Text        string    `gorm:"type:varchar(500);not null"`
	DueDate     *time.Time
	Completed   bool      `gorm:"not null;default:false;index"`
	CompletedAt *time.Time
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

func (TodoModel) TableName() string { return "todos" }

func (m *TodoModel) ToDomain() *Todo {
	return &Todo{
		ID:          m.ID,
		UserID:      m.UserID,
		Text:        m.Text,
		DueDate:     m.DueDate,
		Completed:   m.Completed,
		CompletedAt: m.CompletedAt,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func TodoToModel(t *Todo) *TodoModel {
	return &TodoModel{
		ID:          t.ID,
		UserID:      t.UserID,
		Text:        t.Text,
		DueDate:     t.DueDate,
		Completed:   t.Completed,
		CompletedAt: t.CompletedAt,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

// MessageModel is the GORM model for the messages table. ULID ids sort
// lexically by creation time, so (room_id, id) serves cursor pagination.
type MessageModel struct {
	ID         string    `gorm:"type:varchar(26);primaryKey;index:idx_message_room_id,priority:2"`
	RoomID     string    `gorm:"type:varchar(36);not null;index:idx_message_room_id,priority:1"`
	AuthorID   string    `gorm:"type:varchar(64);not null;index"`
	AuthorName string    `gorm:"type:varchar(100)"`
	Content    string    `gorm:"type:text"`
	MediaKey   string    `gorm:"type:varchar(255)"`
	MediaURL   string    `gorm:"type:text"`
	MediaType  string    `gorm:"type:varchar(10)"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
	EditedAt   *time.Time
	DeletedAt  gorm.DeletedAt `gorm:"index"`
}

func (MessageModel) TableName() string { return "messages" }

func (m *MessageModel) ToDomain() *Message {
	return &Message{
		ID:         m.ID,
		RoomID:     m.RoomID,
		AuthorID:   m.AuthorID,
		AuthorName: m.AuthorName,
		Content:    m.Content,
		MediaKey:   m.MediaKey,
		MediaURL:   m.MediaURL,
		MediaType:  m.MediaType,
		CreatedAt:  m.CreatedAt,
		EditedAt:   m.EditedAt,
	}
}

func MessageToModel(msg *Message) *MessageModel {
	return &MessageModel{
		ID:         msg.ID,
		RoomID:     msg.RoomID,
		AuthorID:   msg.AuthorID,
		AuthorName: msg.AuthorName,
		Content:    msg.Content,
		MediaKey:   msg.MediaKey,
		MediaURL:   msg.MediaURL,
		MediaType:  msg.MediaType,
		CreatedAt:  msg.CreatedAt,
		EditedAt:   msg.EditedAt,
	}
}

// Models lists every table for auto-migration.
func Models() []interface{} {
	return []interface{}{
		&UserModel{},
		&FriendshipModel{},
		&RoomModel{},
		&SessionModel{},
		&TodoModel{},
		&MessageModel{},
	}
}
