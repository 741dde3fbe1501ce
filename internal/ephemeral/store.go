// Package ephemeral holds per-user state that is never written to the
// relational store: demo conversations started by admins, and which
// conversation groups a user has collapsed in the sidebar.
package ephemeral

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/tbourn/scenario-chat/internal/domain"
)

// DemoPrefix marks conversation ids that live only in a Store.
const DemoPrefix = "demo-"

// ErrNotFound is returned for unknown or expired conversations.
var ErrNotFound = errors.New("ephemeral: not found")

// IsDemoID reports whether id names a demo conversation.
func IsDemoID(id string) bool { return strings.HasPrefix(id, DemoPrefix) }

// Conversation is a demo conversation. ScenarioID points straight at the
// scenario being previewed, not at an assignment.
type Conversation struct {
	ID            string           `json:"id"`
	OwnerID       string           `json:"owner_id"`
	Title         string           `json:"title"`
	ScenarioID    string           `json:"scenario_id"`
	ScenarioTitle string           `json:"scenario_title"`
	Prompt        string           `json:"prompt"`
	CreatedAt     time.Time        `json:"created_at"`
	Messages      []domain.Message `json:"messages"`
}

func (c *Conversation) setStatus(messageID string, status domain.MessageStatus) {
	for i := range c.Messages {
		if c.Messages[i].ID == messageID {
			c.Messages[i].Status = status
			c.Messages[i].UpdatedAt = time.Now().UTC()
			return
		}
	}
}

func (c *Conversation) clone() *Conversation {
	cp := *c
	cp.Messages = append([]domain.Message(nil), c.Messages...)
	return &cp
}

// Store is the contract shared by the in-process and Redis backends. All
// methods are safe for concurrent use.
type Store interface {
	PutConversation(ctx context.Context, c *Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	ListConversations(ctx context.Context, ownerID string) ([]*Conversation, error)
	AppendMessages(ctx context.Context, id string, msgs ...domain.Message) error
	// SetMessageStatus updates one message in place. Unknown message ids
	// are ignored; an unknown conversation is ErrNotFound.
	SetMessageStatus(ctx context.Context, id, messageID string, status domain.MessageStatus) error
	ClearMessages(ctx context.Context, id string) error

	Expansion(ctx context.Context, userID string) (map[string]bool, error)
	SaveExpansion(ctx context.Context, userID string, state map[string]bool) error

	Close() error
}
