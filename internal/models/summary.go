package models

import "time"

// ConversationSummary describes one direct conversation from the viewer's side.
type ConversationSummary struct {
	PeerID      string         `json:"peer_id"`
	Peer        AuthorSnapshot `json:"peer"`
	LastMessage Message        `json:"last_message"`
	UnreadCount int            `json:"unread_count"`
}

// DayGroup is a run of messages sent on the same calendar day.
type DayGroup struct {
	Day      time.Time `json:"day"`
	Messages []Message `json:"messages"`
}

// FeedEvent is pushed to websocket clients following a feed.
type FeedEvent struct {
	Type      string    `json:"type"`
	Scope     *Scope    `json:"scope,omitempty"`
	Messages  []Message `json:"messages,omitempty"`
	Message   *Message  `json:"message,omitempty"`
	MessageID string    `json:"message_id,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Error     string    `json:"error,omitempty"`
	Code      string    `json:"code,omitempty"`
}
