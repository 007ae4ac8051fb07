package feed

import (
	"sort"
	"time"

	"coach-chat/internal/models"
)

// BuildConversationSummaries groups the direct messages involving selfID by peer.
// Messages of other scopes are ignored. Summaries are ordered newest conversation first.
func BuildConversationSummaries(selfID string, messages []models.Message) []models.ConversationSummary {
	byPeer := map[string]*models.ConversationSummary{}
	order := make([]string, 0)

	for _, m := range messages {
		if m.Scope.Kind != models.ScopeDirect || !m.Scope.Includes(selfID) {
			continue
		}
		peerID := m.Scope.Peer(selfID)

		summary, ok := byPeer[peerID]
		if !ok {
			summary = &models.ConversationSummary{PeerID: peerID, LastMessage: m}
			byPeer[peerID] = summary
			order = append(order, peerID)
		} else if newer(m, summary.LastMessage) {
			summary.LastMessage = m
		}

		switch {
		case m.AuthorID == peerID:
			summary.Peer = m.Author
			if !m.Read {
				summary.UnreadCount++
			}
		case summary.Peer.Email == "" && m.Recipient != nil:
			// only self has written so far; a snapshot the peer authored still wins
			summary.Peer = *m.Recipient
		}
	}

	out := make([]models.ConversationSummary, 0, len(order))
	for _, peerID := range order {
		out = append(out, *byPeer[peerID])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return newer(out[i].LastMessage, out[j].LastMessage)
	})
	return out
}

// UnreadTotal counts unread direct messages addressed to selfID.
func UnreadTotal(selfID string, messages []models.Message) int {
	n := 0
	for _, m := range messages {
		if m.Scope.Kind == models.ScopeDirect && m.Scope.Includes(selfID) && m.AuthorID != selfID && !m.Read {
			n++
		}
	}
	return n
}

// GroupByDay splits an oldest-first message list into calendar days in loc.
func GroupByDay(messages []models.Message, loc *time.Location) []models.DayGroup {
	if loc == nil {
		loc = time.UTC
	}
	var groups []models.DayGroup
	for _, m := range messages {
		t := m.CreatedAt.In(loc)
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
		if n := len(groups); n > 0 && groups[n-1].Day.Equal(day) {
			groups[n-1].Messages = append(groups[n-1].Messages, m)
			continue
		}
		groups = append(groups, models.DayGroup{Day: day, Messages: []models.Message{m}})
	}
	return groups
}

// newer orders by CreatedAt, breaking ties on the greater id.
func newer(a, b models.Message) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID > b.ID
	}
	return a.CreatedAt.After(b.CreatedAt)
}
