package models

import (
	"errors"
	"fmt"
	"strings"
)

// ScopeKind discriminates the feeds a message can belong to.
type ScopeKind string

const (
	ScopeGlobal ScopeKind = "global"
	ScopeDirect ScopeKind = "direct"
	ScopePlan   ScopeKind = "plan"
)

// Scope identifies one feed. Direct scopes hold both participants in sorted order so
// that either side builds the same scope.
type Scope struct {
	Kind   ScopeKind
	UserA  string
	UserB  string
	PlanID string
}

// GlobalRoom returns the scope of the shared room.
func GlobalRoom() Scope {
	return Scope{Kind: ScopeGlobal}
}

// DirectConversation returns the scope shared by two users.
func DirectConversation(userID, peerID string) Scope {
	if peerID < userID {
		userID, peerID = peerID, userID
	}
	return Scope{Kind: ScopeDirect, UserA: userID, UserB: peerID}
}

// PlanThread returns the scope of a training plan's thread.
func PlanThread(planID string) Scope {
	return Scope{Kind: ScopePlan, PlanID: planID}
}

// Key renders a stable identifier used for routing and comparison.
func (s Scope) Key() string {
	switch s.Kind {
	case ScopeDirect:
		return "direct:" + s.UserA + ":" + s.UserB
	case ScopePlan:
		return "plan:" + s.PlanID
	default:
		return string(ScopeGlobal)
	}
}

func (s Scope) String() string {
	return s.Key()
}

// Peer returns the participant of a direct scope that is not userID.
func (s Scope) Peer(userID string) string {
	if s.Kind != ScopeDirect {
		return ""
	}
	if s.UserA == userID {
		return s.UserB
	}
	return s.UserA
}

// Includes reports whether userID participates in a direct scope.
func (s Scope) Includes(userID string) bool {
	return s.Kind == ScopeDirect && (s.UserA == userID || s.UserB == userID)
}

// Validate checks the scope carries the identifiers its kind requires.
func (s Scope) Validate() error {
	switch s.Kind {
	case ScopeGlobal:
		return nil
	case ScopeDirect:
		if s.UserA == "" || s.UserB == "" {
			return errors.New("direct scope requires two participants")
		}
		if s.UserA == s.UserB {
			return errors.New("cannot chat with yourself")
		}
		return nil
	case ScopePlan:
		if s.PlanID == "" {
			return errors.New("plan scope requires a plan id")
		}
		return nil
	default:
		return fmt.Errorf("unknown scope kind %q", s.Kind)
	}
}

// ParseScope parses a scope reference as used by the HTTP and websocket APIs:
// "global", "direct:<peer>" (relative to userID) or "plan:<id>".
func ParseScope(raw, userID string) (Scope, error) {
	kind, ref, _ := strings.Cut(raw, ":")
	var s Scope
	switch ScopeKind(kind) {
	case ScopeGlobal:
		s = GlobalRoom()
	case ScopeDirect:
		s = DirectConversation(userID, ref)
	case ScopePlan:
		s = PlanThread(ref)
	default:
		return Scope{}, fmt.Errorf("unknown scope %q", raw)
	}
	if err := s.Validate(); err != nil {
		return Scope{}, err
	}
	return s, nil
}

// MarshalText encodes the scope as its Key, in JSON values and map keys alike.
func (s Scope) MarshalText() ([]byte, error) {
	return []byte(s.Key()), nil
}

// UnmarshalText parses the Key form.
func (s *Scope) UnmarshalText(b []byte) error {
	kind, rest, _ := strings.Cut(string(b), ":")
	switch ScopeKind(kind) {
	case ScopeGlobal:
		*s = GlobalRoom()
	case ScopePlan:
		*s = PlanThread(rest)
	case ScopeDirect:
		userA, userB, ok := strings.Cut(rest, ":")
		if !ok {
			return fmt.Errorf("malformed direct scope %q", rest)
		}
		*s = DirectConversation(userA, userB)
	default:
		return fmt.Errorf("unknown scope %q", string(b))
	}
	return nil
}
