package stores

import (
	"log"
	"strings"

	"github.com/Desarso/chatrelay/models"
)

// SanitizeHistory ensures stored history is a valid prompt for LLM APIs.
//
// Both supported providers reject empty message content and require the first
// message to come from the user. A conversation can end up in either state when
// an earlier turn failed half way, e.g. an assistant row saved with no text.
//
// The function ensures:
// - Messages with blank content are dropped
// - History always starts with a user message
func SanitizeHistory(msgs []Message) []Message {
	if len(msgs) == 0 {
		return msgs
	}

	kept := make([]Message, 0, len(msgs))
	for i, msg := range msgs {
		if strings.TrimSpace(msg.Content) == "" {
			log.Printf("[HISTORY_SANITIZER] Dropping empty %s message at index %d", msg.Role, i)
			continue
		}
		kept = append(kept, msg)
	}

	startIdx := findValidStartIndex(kept)
	if startIdx == -1 {
		log.Printf("[HISTORY_SANITIZER] No user message found, returning empty history")
		return []Message{}
	}

	if startIdx > 0 {
		log.Printf("[HISTORY_SANITIZER] Skipping first %d messages to find valid start (was role: %s)", startIdx, kept[0].Role)
		kept = kept[startIdx:]
	}

	return kept
}

// findValidStartIndex finds the first user message.
func findValidStartIndex(msgs []Message) int {
	for i, msg := range msgs {
		if msg.Role == models.RoleUser {
			return i
		}
	}
	return -1
}

// ToChatMessages converts stored messages to the provider-neutral form.
func ToChatMessages(msgs []Message) []models.ChatMessage {
	out := make([]models.ChatMessage, len(msgs))
	for i, m := range msgs {
		out[i] = models.ChatMessage{Role: m.Role, Content: m.Content}
	}
	return out
}

// DetectCorruptedHistory checks if the history has any issues that would cause API errors.
// Returns a list of issues found (empty if history is clean).
func DetectCorruptedHistory(msgs []Message) []string {
	issues := []string{}

	if len(msgs) == 0 {
		return issues
	}

	if msgs[0].Role != models.RoleUser {
		issues = append(issues, "History does not start with a user message")
	}

	for i, msg := range msgs {
		if strings.TrimSpace(msg.Content) == "" {
			issues = append(issues, "Message with empty content")
		}
		if i > 0 && msgs[i-1].Role == msg.Role {
			// Providers merge these, but it usually means a turn failed before its reply was saved
			issues = append(issues, "Two consecutive "+strings.ToLower(string(msg.Role))+" messages")
		}
	}

	return issues
}
