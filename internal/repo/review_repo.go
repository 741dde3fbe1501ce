package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/scenario-chat/internal/domain"
)

// UserConversationRow is one denormalized row of the user-conversations
// report: a conversation repeated once per message, or once with nil message
// columns when it has none.
type UserConversationRow struct {
	ConversationID        string
	ConversationTitle     string
	ConversationCreatedAt time.Time
	ScenarioID            string
	MessageID             *string
	Sender                *string
	Content               *string
	MessageCreatedAt      *time.Time
}

// UserConversationRows lists userID's conversations started under any
// assignment of scenarioID, joined with their messages.
func UserConversationRows(ctx context.Context, db *gorm.DB, userID, scenarioID string) ([]UserConversationRow, error) {
	var rows []UserConversationRow
	err := db.WithContext(ctx).Raw(`
SELECT c.id         AS conversation_id,
       c.title      AS conversation_title,
       c.created_at AS conversation_created_at,
       us.scenario_id AS scenario_id,
       m.id         AS message_id,
       m.sender     AS sender,
       m.content    AS content,
       m.created_at AS message_created_at
FROM conversations c
JOIN user_scenarios us ON us.id = c.assignment_id
LEFT JOIN messages m ON m.conversation_id = c.id
WHERE c.user_id = ? AND us.scenario_id = ?
ORDER BY c.created_at DESC, m.created_at ASC`, userID, scenarioID).
		Scan(&rows).Error
	return rows, err
}

// ConversationMetrics aggregates message counts per conversation. Only
// conversations holding at least one message are reported.
func ConversationMetrics(ctx context.Context, db *gorm.DB) ([]domain.ConversationMetrics, error) {
	var out []domain.ConversationMetrics
	err := db.WithContext(ctx).Raw(`
SELECT c.id      AS conversation_id,
       c.user_id AS user_id,
       COUNT(m.id) AS total_messages,
       SUM(CASE WHEN m.sender = 'user' THEN 1 ELSE 0 END) AS user_messages
FROM conversations c
JOIN messages m ON m.conversation_id = c.id
GROUP BY c.id, c.user_id
ORDER BY c.id`).
		Scan(&out).Error
	return out, err
}
