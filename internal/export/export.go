// Package export renders a conversation transcript as CSV or PDF.
package export

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tbourn/scenario-chat/internal/domain"
)

// Line is one message of a transcript.
type Line struct {
	Sender    domain.Sender
	Text      string
	CreatedAt *time.Time
}

// Transcript is everything the PDF header needs plus the messages.
type Transcript struct {
	Title         string
	ScenarioTitle string
	IsDemo        bool
	Author        string
	ExportedAt    time.Time
	Lines         []Line
}

// LinesFrom converts stored messages to transcript lines.
func LinesFrom(msgs []domain.Message) []Line {
	out := make([]Line, 0, len(msgs))
	for i := range msgs {
		ts := msgs[i].CreatedAt
		var at *time.Time
		if !ts.IsZero() {
			at = &ts
		}
		out = append(out, Line{Sender: msgs[i].Sender, Text: msgs[i].Content, CreatedAt: at})
	}
	return out
}

// Label is the speaker name printed in exports.
func Label(s domain.Sender) string {
	switch s {
	case domain.SenderUser:
		return "You"
	case domain.SenderBot:
		return "Bot"
	default:
		return "System"
	}
}

var unsafeFileChars = regexp.MustCompile(`[\\/:*?"<>|]`)

// PDFFilename derives a download name from a conversation title.
func PDFFilename(title string) string {
	if strings.TrimSpace(title) == "" {
		title = "Chat"
	}
	safe := unsafeFileChars.ReplaceAllString(title, "-")
	if utf8.RuneCountInString(safe) > 100 {
		safe = string([]rune(safe)[:100])
	}
	return safe + ".pdf"
}

// CSVFilename names the CSV download for a conversation.
func CSVFilename(conversationID string) string {
	return "conversation-" + conversationID + ".csv"
}
