// Package session keeps the per-user conversation log.
package session

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"recipechat/internal/domain"
)

// ErrBusy is returned when a turn starts while a reply is still streaming.
var ErrBusy = errors.New("a reply is still streaming")

// State is the lifecycle state of a session.
type State int

const (
	StateEmpty State = iota
	StateSystemLoaded
	StateAwaitingInput
	StateStreamingReply
)

func (s State) String() string {
	switch s {
	case StateSystemLoaded:
		return "system_loaded"
	case StateAwaitingInput:
		return "awaiting_input"
	case StateStreamingReply:
		return "streaming_reply"
	default:
		return "empty"
	}
}

// SummaryPrefix starts the system message that carries evicted history.
const SummaryPrefix = "Summary of earlier conversation: "

const previewRunes = 40

// Config bounds a session.
type Config struct {
	// MaxMessages caps the non-system messages kept; 0 means unbounded.
	MaxMessages      int
	SummarizeEvicted bool
	SummarySentences int
	Summarizer       domain.Summarizer
}

// Preview is one line of the history panel.
type Preview struct {
	Role domain.Role
	Text string
}

// Session is an ordered, append-only message log whose first entry is always
// the system instruction. It is safe for concurrent use.
type Session struct {
	id     string
	system string
	cfg    Config
	now    func() time.Time

	mu       sync.Mutex
	messages []domain.Message
	summary  string
	state    State
	evicted  int
}

// New creates a session seeded with the system prompt.
func New(systemPrompt string, cfg Config) *Session {
	s := &Session{
		id:     uuid.NewString(),
		system: systemPrompt,
		cfg:    cfg,
		now:    time.Now,
	}
	s.resetLocked()
	return s
}

func (s *Session) ID() string { return s.id }

// Reset clears the conversation and reinserts the system message. It fails
// with ErrBusy while a reply is streaming.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateStreamingReply {
		return ErrBusy
	}
	s.resetLocked()
	return nil
}

func (s *Session) resetLocked() {
	s.messages = []domain.Message{{Role: domain.RoleSystem, Content: s.system, CreatedAt: s.now()}}
	s.summary = ""
	s.evicted = 0
	s.state = StateSystemLoaded
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Append adds a user or assistant message.
func (s *Session) Append(role domain.Role, content string) error {
	if role != domain.RoleUser && role != domain.RoleAssistant {
		return fmt.Errorf("cannot append message with role %q", role)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLocked(domain.Message{Role: role, Content: content})
	if s.state == StateSystemLoaded {
		s.state = StateAwaitingInput
	}
	return nil
}

// BeginReply records the user's message, moves the session into the
// streaming state and returns the messages to send. It fails with ErrBusy
// while another reply is streaming.
func (s *Session) BeginReply(userText string) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateStreamingReply {
		return nil, ErrBusy
	}
	s.appendLocked(domain.Message{Role: domain.RoleUser, Content: userText})
	s.state = StateStreamingReply
	return s.messagesLocked(), nil
}

// EndReply leaves the streaming state. A non-empty reply is committed as an
// assistant message; incomplete tags it as cut short.
func (s *Session) EndReply(reply string, incomplete bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if reply != "" {
		s.appendLocked(domain.Message{Role: domain.RoleAssistant, Content: reply, Incomplete: incomplete})
	}
	s.state = StateAwaitingInput
}

// Messages returns the full log as sent to the completion endpoint: the
// system instruction, the running summary if any, then the conversation.
func (s *Session) Messages() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messagesLocked()
}

// Transcript returns the visible conversation without system messages.
func (s *Session) Transcript() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Message, len(s.messages)-1)
	copy(out, s.messages[1:])
	return out
}

// History returns a short preview of each visible message.
func (s *Session) History() []Preview {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Preview, 0, len(s.messages)-1)
	for _, m := range s.messages[1:] {
		out = append(out, Preview{Role: m.Role, Text: preview(m.Content)})
	}
	return out
}

// Summary returns the running summary of evicted messages.
func (s *Session) Summary() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary
}

// Evicted reports how many messages were dropped from the log.
func (s *Session) Evicted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evicted
}

func (s *Session) messagesLocked() []domain.Message {
	out := make([]domain.Message, 0, len(s.messages)+1)
	out = append(out, s.messages[0])
	if s.summary != "" {
		out = append(out, domain.Message{Role: domain.RoleSystem, Content: SummaryPrefix + s.summary})
	}
	return append(out, s.messages[1:]...)
}

func (s *Session) appendLocked(m domain.Message) {
	m.CreatedAt = s.now()
	s.messages = append(s.messages, m)
	s.evictLocked()
}

func (s *Session) evictLocked() {
	excess := len(s.messages) - 1 - s.cfg.MaxMessages
	if s.cfg.MaxMessages <= 0 || excess <= 0 {
		return
	}
	dropped := s.messages[1 : 1+excess]
	if s.cfg.SummarizeEvicted && s.cfg.Summarizer != nil {
		s.summary = s.fold(dropped)
	}
	rest := append([]domain.Message{s.messages[0]}, s.messages[1+excess:]...)
	s.messages = rest
	s.evicted += excess
}

// fold merges dropped messages into the running summary.
func (s *Session) fold(dropped []domain.Message) string {
	var b strings.Builder
	if s.summary != "" {
		b.WriteString(s.summary)
	}
	for _, m := range dropped {
		text := strings.Join(strings.Fields(m.Content), " ")
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(string(m.Role))
		b.WriteString(": ")
		b.WriteString(text)
		if !strings.ContainsAny(text[len(text)-1:], ".!?") {
			b.WriteByte('.')
		}
	}
	summary, err := s.cfg.Summarizer.Summarize(b.String(), s.cfg.SummarySentences)
	if err != nil {
		return s.summary
	}
	return summary
}

func preview(content string) string {
	r := []rune(strings.Join(strings.Fields(content), " "))
	if len(r) <= previewRunes {
		return string(r)
	}
	return string(r[:previewRunes]) + "..."
}
