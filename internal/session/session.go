package session

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"cosmicdocflow/internal/checkpoint"
	"cosmicdocflow/internal/llm"
)

// protected is the number of leading turns never trimmed: the system prompt
// and the first user turn that carries the task payload.
const protected = 2

// Session is one conversation with the generation service. It owns the turn
// history and keeps it under the configured ceiling.
type Session struct {
	ID      string
	Label   string
	ceiling int
	turns   []llm.Turn
}

// New seeds a session with the system prompt and the initial user turn.
func New(label string, ceiling int, system, user string) *Session {
	return &Session{
		ID:      uuid.NewString(),
		Label:   label,
		ceiling: ceiling,
		turns: []llm.Turn{
			{Role: llm.RoleSystem, Content: system},
			{Role: llm.RoleUser, Content: user},
		},
	}
}

// Append adds a turn, trimming the oldest unprotected pair when the history
// would exceed the ceiling. Pairs are dropped together so the transcript
// never opens with a dangling assistant reply.
func (s *Session) Append(role, content string) {
	s.turns = append(s.turns, llm.Turn{Role: role, Content: content})
	for s.ceiling > 0 && len(s.turns) >= s.ceiling && len(s.turns) > protected+2 {
		s.turns = append(s.turns[:protected], s.turns[protected+2:]...)
	}
}

// Turns returns a copy of the current history.
func (s *Session) Turns() []llm.Turn {
	out := make([]llm.Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Len returns the number of turns currently held.
func (s *Session) Len() int { return len(s.turns) }

type transcript struct {
	ID    string     `json:"id"`
	Label string     `json:"label"`
	Turns []llm.Turn `json:"turns"`
}

// DumpTranscript writes the session history as JSON under dir for audit.
func (s *Session) DumpTranscript(dir string) error {
	data, err := json.MarshalIndent(transcript{ID: s.ID, Label: s.Label, Turns: s.turns}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal transcript %s: %w", s.ID, err)
	}
	return checkpoint.WriteFileAtomic(filepath.Join(dir, s.ID+".json"), data)
}

// Registry keeps the most recently finished sessions in memory, bounded to a
// fixed capacity with least-recently-used eviction.
type Registry struct {
	mu    sync.Mutex
	cap   int
	order []string
	items map[string]*Session
}

// NewRegistry returns a registry holding at most capacity sessions.
func NewRegistry(capacity int) *Registry {
	if capacity <= 0 {
		capacity = 1
	}
	return &Registry{cap: capacity, items: make(map[string]*Session)}
}

// Put records a session, evicting the least recently used entry if full.
func (r *Registry) Put(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[s.ID]; ok {
		r.touch(s.ID)
		r.items[s.ID] = s
		return
	}
	if len(r.order) >= r.cap {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.items, oldest)
	}
	r.order = append(r.order, s.ID)
	r.items[s.ID] = s
}

// Get looks up a session by ID and marks it recently used.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.items[id]
	if ok {
		r.touch(id)
	}
	return s, ok
}

// Len returns the number of retained sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

func (r *Registry) touch(id string) {
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.order = append(r.order, id)
}
