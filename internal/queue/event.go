// Package queue defines message payloads exchanged over the message broker
// together with the publisher and the consumer of those messages.
package queue

// LoginQueueName is the durable queue that carries LoginRecordedEvent.
const LoginQueueName = "auth.login_recorded"

// LoginRecordedEvent is published after a successful login. It contains
// enough information for downstream consumers to log or alert without
// querying the credential store.
type LoginRecordedEvent struct {
	UserID     uint64 `json:"user_id"`
	Login      string `json:"login"`
	IPAddress  string `json:"ip_address,omitempty"`
	UserAgent  string `json:"user_agent,omitempty"`
	LoggedInAt string `json:"logged_in_at"`
}
