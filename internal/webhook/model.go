// Package webhook notifies HTTP endpoints about batch outcomes.
package webhook

import "slices"

// Webhook is an endpoint from the configuration file. An empty Events list
// subscribes to every event type.
type Webhook struct {
	Name   string   `yaml:"name" json:"name" validate:"required"`
	URL    string   `yaml:"url" json:"url" validate:"required,http_url"`
	Type   string   `yaml:"type" json:"type" validate:"omitempty,oneof=generic discord slack gotify"`
	Events []string `yaml:"events" json:"events,omitempty" validate:"dive,event_type"`
}

// Webhook types.
const (
	TypeGeneric = "generic"
	TypeDiscord = "discord"
	TypeSlack   = "slack"
	TypeGotify  = "gotify"
)

// Wants reports whether w subscribes to events of type t.
func (w *Webhook) Wants(t string) bool {
	if len(w.Events) == 0 {
		return true
	}
	return slices.Contains(w.Events, t)
}
