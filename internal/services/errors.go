// Package services holds the business logic behind the chat and admin views:
// scenario resolution, conversations, the message exchange with the reply
// generator, scenario/assignment management, review and analytics.
//
// This file centralizes the service-level error values. Handlers translate
// them into HTTP status codes.
package services

import (
	"errors"

	"github.com/tbourn/scenario-chat/internal/repo"
)

var (
	// ErrForbidden is returned when a non-admin attempts an admin action.
	ErrForbidden = errors.New("admin role required")

	// ErrConversationNotFound indicates that the conversation does not exist
	// or does not belong to the caller.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrScenarioNotFound indicates that the scenario does not exist.
	ErrScenarioNotFound = errors.New("scenario not found")

	// ErrAssignmentNotFound indicates that the assignment does not exist.
	ErrAssignmentNotFound = errors.New("assignment not found")

	// ErrEmptyPrompt is returned when the message text is blank.
	ErrEmptyPrompt = errors.New("prompt is empty")

	// ErrTooLong is returned when the message text exceeds the configured limit.
	ErrTooLong = errors.New("prompt too long")

	// ErrInvalidScenario is returned when a scenario title or content is blank.
	ErrInvalidScenario = errors.New("scenario title and content are required")

	// ErrMessageNotFound indicates that the message does not exist.
	ErrMessageNotFound = errors.New("message not found")

	// ErrForbiddenFeedback is returned for feedback on a message the caller
	// may not rate: someone else's conversation, or not a bot reply.
	ErrForbiddenFeedback = errors.New("cannot leave feedback on this message")

	// ErrDuplicateFeedback is returned when the caller already rated the message.
	ErrDuplicateFeedback = errors.New("feedback already exists")

	// ErrInvalidFeedback is returned when the rating is outside 1..5.
	ErrInvalidFeedback = errors.New("rating must be between 1 and 5")

	// ErrNotDispatched is reported when a turn could not be stored and the
	// relay was therefore not asked for a reply.
	ErrNotDispatched = errors.New("reply not requested: message was not stored")

	// ErrBadCallback is returned for a reply callback without a conversation
	// or message to attach the reply to.
	ErrBadCallback = errors.New("callback is missing conversationId or messageId")
)

func isNotFound(err error) bool { return errors.Is(err, repo.ErrNotFound) }
