// Package session implements the conversation-memory external collaborator
// from spec §6 (store_conversation / store_message / get_conversation_history
// / retrieve_relevant_memories) as a thread-safe in-memory TTL store, plus
// the length-prefixed on-disk cache format used for cross-invocation hints
// under $HOME/.local/share/vibe_cli/<project-hash>_*.
package session

import (
	"strings"
	"sync"
	"time"
)

// minCleanupInterval prevents a degenerate ticker interval from a
// misconfigured (near-zero) TTL.
const minCleanupInterval = time.Millisecond

// Turn is one complete exchange: a user message and the assistant's final
// answer, excluding intermediate reasoning/tool steps.
type Turn struct {
	UserMsg   string
	Assistant string
	IsAgent   bool
	When      time.Time
}

// Conversation holds the turn history and compact summary for one
// project/session pair.
type Conversation struct {
	ID       string
	History  []Turn
	Summary  string
	LastUsed time.Time
}

// ConversationMemory is the external collaborator the agent controller
// consults for persistence across invocations. Every method here is
// best-effort: callers treat any failure as non-fatal (log and continue,
// per spec §5) rather than aborting the build or agent run.
type ConversationMemory interface {
	StoreConversation(id string, turn Turn)
	StoreMessage(id string, role, content string)
	GetConversationHistory(id string) []Turn
	RetrieveRelevantMemories(id, query string, limit int) []Turn
}

// Store is a thread-safe in-memory ConversationMemory with TTL eviction,
// matching the single-process, non-clustered scope the rest of this core
// assumes.
type Store struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation
	ttl           time.Duration
	maxTurns      int
	done          chan struct{}
}

// NewStore creates a Store evicting conversations idle longer than ttl,
// keeping at most maxTurns turns per conversation. A background goroutine
// runs the eviction sweep; call Close to stop it.
func NewStore(ttl time.Duration, maxTurns int) *Store {
	if ttl < minCleanupInterval {
		ttl = minCleanupInterval
	}
	s := &Store{
		conversations: make(map[string]*Conversation),
		ttl:           ttl,
		maxTurns:      maxTurns,
		done:          make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

// StoreConversation appends a completed turn, auto-creating the
// conversation on first write and trimming to maxTurns.
func (s *Store) StoreConversation(id string, turn Turn) {
	if turn.When.IsZero() {
		turn.When = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[id]
	if !ok {
		conv = &Conversation{ID: id, LastUsed: time.Now()}
		s.conversations[id] = conv
	}
	conv.History = append(conv.History, turn)
	if len(conv.History) > s.maxTurns {
		conv.History = conv.History[len(conv.History)-s.maxTurns:]
	}
	conv.LastUsed = time.Now()
}

// StoreMessage records a single role-tagged message as a half-turn: a
// "user" role starts a new pending turn, any other role (typically
// "assistant") completes the most recent pending one. Used by callers
// that only have message-at-a-time granularity, e.g. a streaming handler.
func (s *Store) StoreMessage(id string, role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[id]
	if !ok {
		conv = &Conversation{ID: id, LastUsed: time.Now()}
		s.conversations[id] = conv
	}
	if role == "user" || len(conv.History) == 0 || conv.History[len(conv.History)-1].Assistant != "" {
		conv.History = append(conv.History, Turn{UserMsg: content, When: time.Now()})
		if role != "user" {
			conv.History[len(conv.History)-1].UserMsg = ""
			conv.History[len(conv.History)-1].Assistant = content
		}
	} else {
		conv.History[len(conv.History)-1].Assistant = content
	}
	if len(conv.History) > s.maxTurns {
		conv.History = conv.History[len(conv.History)-s.maxTurns:]
	}
	conv.LastUsed = time.Now()
}

// GetConversationHistory returns a defensive copy of id's turn history, or
// nil if the conversation does not exist.
func (s *Store) GetConversationHistory(id string) []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[id]
	if !ok {
		return nil
	}
	out := make([]Turn, len(conv.History))
	copy(out, conv.History)
	return out
}

// RetrieveRelevantMemories returns up to limit turns from id's history
// whose user message or answer shares a case-insensitive substring with
// query, most recent first. This is a coarse keyword match, not semantic
// search — a real RAG-backed implementation can satisfy the same
// interface without changing any caller.
func (s *Store) RetrieveRelevantMemories(id, query string, limit int) []Turn {
	history := s.GetConversationHistory(id)
	if query == "" || limit <= 0 {
		return nil
	}
	terms := strings.Fields(strings.ToLower(query))
	var matches []Turn
	for i := len(history) - 1; i >= 0 && len(matches) < limit; i-- {
		t := history[i]
		hay := strings.ToLower(t.UserMsg + " " + t.Assistant)
		for _, term := range terms {
			if len(term) >= 3 && strings.Contains(hay, term) {
				matches = append(matches, t)
				break
			}
		}
	}
	return matches
}

// Compact replaces older turns with summary, keeping the newest keepN.
func (s *Store) Compact(id, summary string, keepN int) (compacted int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[id]
	if !ok || len(conv.History) <= keepN {
		return 0
	}
	compacted = len(conv.History) - keepN
	conv.Summary = summary
	conv.History = conv.History[len(conv.History)-keepN:]
	conv.LastUsed = time.Now()
	return compacted
}

// Delete removes a conversation outright.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, id)
}

// Close stops the background eviction goroutine. Safe to call more than once.
func (s *Store) Close() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.mu.Lock()
			cutoff := time.Now().Add(-s.ttl)
			for id, conv := range s.conversations {
				if conv.LastUsed.Before(cutoff) {
					delete(s.conversations, id)
				}
			}
			s.mu.Unlock()
		}
	}
}
