// Package notifications publishes operator alerts to an ntfy topic.
//
// The daemon raises an alert when a hung backend is restarted, and when the
// restart itself fails and the conversion slot stays held. Publishing is best
// effort; callers log failures and carry on. When no topic is configured
// NewService returns a notifier that drops every event.
package notifications
