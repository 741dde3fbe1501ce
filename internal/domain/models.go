// Package domain defines the persistence models for profiles, scenarios,
// assignments, conversations, messages, and feedback. These types are mapped
// with GORM and form the core data layer of the scenario chat service.
package domain

import (
	"time"
)

// Role is the coarse authorization level stored on a profile.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Sender identifies who authored a message.
type Sender string

const (
	SenderSystem Sender = "system"
	SenderUser   Sender = "user"
	SenderBot    Sender = "bot"
)

// MessageStatus tracks a message through the reply exchange.
type MessageStatus string

const (
	StatusPending MessageStatus = "pending"
	StatusSent    MessageStatus = "sent"
	StatusDone    MessageStatus = "done"
	StatusFailed  MessageStatus = "failed"
)

// Profile carries the role of an authenticated identity. The row is keyed by
// the identity id issued by the auth provider.
type Profile struct {
	ID        string    `json:"id"         gorm:"type:varchar(64);primaryKey"`
	FullName  *string   `json:"full_name"  gorm:"type:varchar(255)"`
	Email     string    `json:"email"      gorm:"type:varchar(255)"`
	Role      Role      `json:"role"       gorm:"type:varchar(16);not null;default:'user';index;check:role IN ('admin','user')"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Profile.
func (Profile) TableName() string { return "profiles" }

// IsAdmin reports whether the profile grants administrative rights.
func (p Profile) IsAdmin() bool { return p.Role == RoleAdmin }

// Scenario is an admin-authored system prompt with a display title.
type Scenario struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	Title     string    `json:"title"      gorm:"type:varchar(255);not null"`
	Content   string    `json:"content"    gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Scenario.
func (Scenario) TableName() string { return "scenarios" }

// Assignment links a user to a scenario. A user may hold several assignments,
// including duplicates of the same scenario; the most recent wins by default.
type Assignment struct {
	ID         string    `json:"id"          gorm:"type:char(36);primaryKey"`
	UserID     string    `json:"user_id"     gorm:"type:varchar(64);not null;index:idx_assign_user,priority:1"`
	ScenarioID string    `json:"scenario_id" gorm:"type:char(36);not null;index"`
	AssignedAt time.Time `json:"assigned_at" gorm:"not null;index:idx_assign_user,priority:2"`

	Scenario *Scenario `json:"scenario,omitempty" gorm:"foreignKey:ScenarioID;references:ID"`
}

// TableName returns the database table name for Assignment.
func (Assignment) TableName() string { return "user_scenarios" }

// Conversation is a titled thread owned by one user. AssignmentID links it to
// the assignment it was started under; it is serialized as scenario_id and
// may dangle once the assignment is removed.
type Conversation struct {
	ID           string    `json:"id"          gorm:"type:char(36);primaryKey"`
	UserID       string    `json:"user_id"     gorm:"type:varchar(64);not null;index:idx_user_convs"`
	Title        string    `json:"title"       gorm:"type:varchar(255);not null"`
	AssignmentID *string   `json:"scenario_id" gorm:"type:char(36);index"`
	CreatedAt    time.Time `json:"created_at"  gorm:"index"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName returns the database table name for Conversation.
func (Conversation) TableName() string { return "conversations" }

// Message is a single turn within a conversation.
type Message struct {
	ID             string        `json:"id"              gorm:"type:char(36);primaryKey"`
	ConversationID string        `json:"conversation_id" gorm:"type:char(36);not null;index:idx_conv_msgs,priority:1"`
	UserID         *string       `json:"user_id,omitempty" gorm:"type:varchar(64)"`
	Sender         Sender        `json:"sender"          gorm:"type:varchar(16);not null;check:sender IN ('system','user','bot')"`
	Content        string        `json:"content"         gorm:"type:text;not null"`
	Status         MessageStatus `json:"status"          gorm:"type:varchar(16);not null;default:'sent'"`
	CreatedAt      time.Time     `json:"created_at"      gorm:"index:idx_conv_msgs,priority:2"`
	UpdatedAt      time.Time     `json:"updated_at"`

	// Conversation is the parent thread. Messages go with it.
	Conversation Conversation `json:"-" gorm:"foreignKey:ConversationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// Feedback is a 1..5 rating with an optional comment left on a bot message.
// One entry per (message, user).
type Feedback struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	MessageID string    `json:"message_id" gorm:"type:char(36);not null;index;uniqueIndex:ux_feedback_message_user"`
	UserID    string    `json:"user_id"    gorm:"type:varchar(64);not null;index;uniqueIndex:ux_feedback_message_user"`
	Rating    int       `json:"rating"     gorm:"not null;check:rating BETWEEN 1 AND 5"`
	Comment   *string   `json:"comment"    gorm:"type:text"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`

	Message Message `json:"-" gorm:"foreignKey:MessageID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Feedback.
func (Feedback) TableName() string { return "feedback" }

// ConversationMetrics is the per-conversation aggregate read by analytics.
type ConversationMetrics struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	TotalMessages  int64  `json:"total_messages"`
	UserMessages   int64  `json:"user_messages"`
}
