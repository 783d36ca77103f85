package webhook

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"

	"github.com/sydlexius/confluence/internal/event"
)

// formatPayload returns the request body and content-type for a webhook delivery.
func formatPayload(w *Webhook, e event.Event) ([]byte, string) {
	switch w.Type {
	case TypeDiscord:
		return formatDiscord(e)
	case TypeSlack:
		return formatSlack(e)
	case TypeGotify:
		return formatGotify(e)
	default:
		return formatGeneric(e)
	}
}

func formatGeneric(e event.Event) ([]byte, string) {
	body, _ := json.Marshal(map[string]any{
		"event":     string(e.Type),
		"batch_id":  e.BatchID,
		"file":      e.File,
		"timestamp": e.Timestamp,
		"data":      e.Data,
	})
	return body, "application/json"
}

func formatDiscord(e event.Event) ([]byte, string) {
	color := 3447003 // blue
	if e.Type == event.BatchFailed {
		color = 15158332 // red
	}
	body, _ := json.Marshal(map[string]any{
		"embeds": []map[string]any{{
			"title":       "Confluence: " + string(e.Type),
			"description": formatDescription(e),
			"color":       color,
			"timestamp":   e.Timestamp.Format("2006-01-02T15:04:05Z"),
		}},
	})
	return body, "application/json"
}

func formatSlack(e event.Event) ([]byte, string) {
	body, _ := json.Marshal(map[string]any{
		"text": fmt.Sprintf("*Confluence: %s*\n%s", e.Type, formatDescription(e)),
	})
	return body, "application/json"
}

func formatGotify(e event.Event) ([]byte, string) {
	priority := 2
	if e.Type == event.BatchFailed {
		priority = 8
	}
	body, _ := json.Marshal(map[string]any{
		"title":    "Confluence: " + string(e.Type),
		"message":  formatDescription(e),
		"priority": priority,
	})
	return body, "application/json"
}

// formatDescription renders a one-line human summary of e.
func formatDescription(e event.Event) string {
	name := e.BatchID
	if name == "" {
		name = e.File
	}
	switch e.Type {
	case event.BatchReconciled:
		return fmt.Sprintf("batch %s: %s claims, %s created, %s merged, %s for review",
			name, count(e.Data["claims"]), count(e.Data["created"]), count(e.Data["merged"]), count(e.Data["manual_review"]))
	case event.BatchFailed:
		return fmt.Sprintf("batch %s failed: %v", name, e.Data["error"])
	case event.ReviewNeeded:
		return fmt.Sprintf("batch %s queued %s claims for manual review", name, count(e.Data["count"]))
	}
	if len(e.Data) == 0 {
		return string(e.Type)
	}
	b, _ := json.Marshal(e.Data)
	return strings.TrimSpace(string(b))
}

func count(v any) string {
	switch n := v.(type) {
	case int:
		return humanize.Comma(int64(n))
	case int64:
		return humanize.Comma(n)
	case float64:
		return humanize.Comma(int64(n))
	default:
		return "0"
	}
}
