package session

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recipechat/internal/domain"
	"recipechat/internal/metrics"
	"recipechat/internal/summarizer"
)

const system = "You are a culinary assistant."

func TestNewSessionStartsWithSystem(t *testing.T) {
	s := New(system, Config{})
	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.RoleSystem, msgs[0].Role)
	assert.Equal(t, system, msgs[0].Content)
	assert.Empty(t, s.Transcript())
	assert.Equal(t, StateSystemLoaded, s.State())
	assert.NotEmpty(t, s.ID())
}

func TestPairsKeepChronologicalOrder(t *testing.T) {
	s := New(system, Config{})
	const n = 4
	for i := range n {
		require.NoError(t, s.Append(domain.RoleUser, fmt.Sprintf("q%d", i)))
		require.NoError(t, s.Append(domain.RoleAssistant, fmt.Sprintf("a%d", i)))
	}

	msgs := s.Messages()
	require.Len(t, msgs, 2*n+1)
	assert.Equal(t, domain.RoleSystem, msgs[0].Role)
	for i := range n {
		assert.Equal(t, domain.Message{Role: domain.RoleUser, Content: fmt.Sprintf("q%d", i)}, strip(msgs[1+2*i]))
		assert.Equal(t, domain.Message{Role: domain.RoleAssistant, Content: fmt.Sprintf("a%d", i)}, strip(msgs[2+2*i]))
	}
	for _, m := range s.Transcript() {
		assert.NotEqual(t, domain.RoleSystem, m.Role)
	}
}

func TestBoundedLogKeepsNewestPairs(t *testing.T) {
	s := New(system, Config{
		MaxMessages:      40,
		SummarizeEvicted: true,
		SummarySentences: 3,
		Summarizer:       summarizer.NewFrequencySummarizer(),
	})
	const n = 25
	for i := range n {
		require.NoError(t, s.Append(domain.RoleUser, fmt.Sprintf("Question %d about tofu.", i)))
		require.NoError(t, s.Append(domain.RoleAssistant, fmt.Sprintf("Answer %d about tofu.", i)))
	}

	tr := s.Transcript()
	require.Len(t, tr, 40)
	assert.Equal(t, "Question 5 about tofu.", tr[0].Content)
	assert.Equal(t, "Answer 24 about tofu.", tr[39].Content)
	assert.Equal(t, 2*n-40, s.Evicted())

	msgs := s.Messages()
	require.Len(t, msgs, 42)
	assert.Equal(t, system, msgs[0].Content)
	assert.Equal(t, domain.RoleSystem, msgs[1].Role)
	assert.True(t, strings.HasPrefix(msgs[1].Content, SummaryPrefix))
	assert.Equal(t, "Question 5 about tofu.", msgs[2].Content)
}

func TestAppendRejectsSystemRole(t *testing.T) {
	s := New(system, Config{})
	assert.Error(t, s.Append(domain.RoleSystem, "override"))
	assert.Error(t, s.Append(domain.Role("tool"), "x"))
	assert.Len(t, s.Messages(), 1)
}

func TestResetReinsertsSystem(t *testing.T) {
	s := New(system, Config{})
	require.NoError(t, s.Append(domain.RoleUser, "hi"))
	require.NoError(t, s.Reset())

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, system, msgs[0].Content)
	assert.Equal(t, StateSystemLoaded, s.State())
}

func TestResetWhileStreamingIsRejected(t *testing.T) {
	s := New(system, Config{})
	_, err := s.BeginReply("q1")
	require.NoError(t, err)

	assert.ErrorIs(t, s.Reset(), ErrBusy)
	assert.Equal(t, StateStreamingReply, s.State())
	_, err = s.BeginReply("q2")
	assert.ErrorIs(t, err, ErrBusy)

	s.EndReply("answer to q1", false)
	msgs := s.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "q1", msgs[1].Content)
	assert.Equal(t, "answer to q1", msgs[2].Content)

	require.NoError(t, s.Reset())
	assert.Len(t, s.Messages(), 1)
}

func TestReplyLifecycle(t *testing.T) {
	s := New(system, Config{})

	msgs, err := s.BeginReply("What can I cook with tofu?")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, StateStreamingReply, s.State())

	_, err = s.BeginReply("again")
	assert.ErrorIs(t, err, ErrBusy)

	s.EndReply("Mapo tofu", false)
	assert.Equal(t, StateAwaitingInput, s.State())

	tr := s.Transcript()
	require.Len(t, tr, 2)
	assert.Equal(t, "Mapo tofu", tr[1].Content)
	assert.False(t, tr[1].Incomplete)
}

func TestEndReplyWithoutTextCommitsNothing(t *testing.T) {
	s := New(system, Config{})
	_, err := s.BeginReply("hello")
	require.NoError(t, err)
	s.EndReply("", false)

	tr := s.Transcript()
	require.Len(t, tr, 1)
	assert.Equal(t, domain.RoleUser, tr[0].Role)
}

func TestEndReplyMarksIncomplete(t *testing.T) {
	s := New(system, Config{})
	_, err := s.BeginReply("hello")
	require.NoError(t, err)
	s.EndReply("Heat the wo", true)

	tr := s.Transcript()
	require.Len(t, tr, 2)
	assert.True(t, tr[1].Incomplete)
}

func TestEvictionKeepsNewestMessages(t *testing.T) {
	s := New(system, Config{MaxMessages: 4})
	for i := range 5 {
		require.NoError(t, s.Append(domain.RoleUser, fmt.Sprintf("m%d", i)))
	}

	tr := s.Transcript()
	require.Len(t, tr, 4)
	assert.Equal(t, "m1", tr[0].Content)
	assert.Equal(t, 1, s.Evicted())
	assert.Equal(t, domain.RoleSystem, s.Messages()[0].Role)
	assert.Empty(t, s.Summary())
}

func TestEvictedMessagesAreSummarized(t *testing.T) {
	s := New(system, Config{
		MaxMessages:      2,
		SummarizeEvicted: true,
		SummarySentences: 3,
		Summarizer:       summarizer.NewFrequencySummarizer(),
	})
	require.NoError(t, s.Append(domain.RoleUser, "I have tofu and pork"))
	require.NoError(t, s.Append(domain.RoleAssistant, "Make mapo tofu."))
	require.NoError(t, s.Append(domain.RoleUser, "Less spicy?"))

	assert.Equal(t, "user: I have tofu and pork.", s.Summary())

	msgs := s.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, domain.RoleSystem, msgs[1].Role)
	assert.True(t, strings.HasPrefix(msgs[1].Content, SummaryPrefix))
	assert.NotContains(t, s.Transcript()[0].Content, "pork")
}

func TestHistoryPreviews(t *testing.T) {
	s := New(system, Config{})
	require.NoError(t, s.Append(domain.RoleUser, strings.Repeat("辣", 45)))
	require.NoError(t, s.Append(domain.RoleAssistant, "short"))

	h := s.History()
	require.Len(t, h, 2)
	assert.Equal(t, strings.Repeat("辣", 40)+"...", h[0].Text)
	assert.Equal(t, Preview{Role: domain.RoleAssistant, Text: "short"}, h[1])
}

func TestRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistry(system, Config{}, Limits{}, metrics.New(reg))

	a, err := r.Create()
	require.NoError(t, err)
	b, err := r.Create()
	require.NoError(t, err)
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, 2, r.Len())

	got, ok := r.Get(a.ID())
	require.True(t, ok)
	assert.Same(t, a, got)

	assert.True(t, r.Delete(a.ID()))
	assert.False(t, r.Delete(a.ID()))
	_, ok = r.Get(a.ID())
	assert.False(t, ok)
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestRegistryDropsIdleSessions(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	r := NewRegistry(system, Config{}, Limits{IdleTTL: time.Hour}, m)
	clock := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	r.now = clock.now

	idle, err := r.Create()
	require.NoError(t, err)
	busy, err := r.Create()
	require.NoError(t, err)
	_, err = busy.BeginReply("still cooking")
	require.NoError(t, err)
	active, err := r.Create()
	require.NoError(t, err)

	clock.advance(50 * time.Minute)
	_, ok := r.Get(active.ID())
	require.True(t, ok)
	clock.advance(20 * time.Minute)

	assert.Equal(t, 1, r.Prune())
	_, ok = r.Get(idle.ID())
	assert.False(t, ok)
	_, ok = r.Get(busy.ID())
	assert.True(t, ok, "a streaming session is kept")
	_, ok = r.Get(active.ID())
	assert.True(t, ok)
	assert.Equal(t, 2, r.Len())
}

func TestRegistryEvictsLeastRecentlyUsedWhenFull(t *testing.T) {
	r := NewRegistry(system, Config{}, Limits{MaxSessions: 2}, nil)
	clock := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	r.now = clock.now

	a, err := r.Create()
	require.NoError(t, err)
	clock.advance(time.Minute)
	b, err := r.Create()
	require.NoError(t, err)
	clock.advance(time.Minute)
	_, ok := r.Get(a.ID())
	require.True(t, ok)

	c, err := r.Create()
	require.NoError(t, err)
	assert.Equal(t, 2, r.Len())
	_, ok = r.Get(b.ID())
	assert.False(t, ok)
	_, ok = r.Get(a.ID())
	assert.True(t, ok)
	_, ok = r.Get(c.ID())
	assert.True(t, ok)
}

func TestRegistryFullOfStreamingSessions(t *testing.T) {
	r := NewRegistry(system, Config{}, Limits{MaxSessions: 1}, nil)
	a, err := r.Create()
	require.NoError(t, err)
	_, err = a.BeginReply("q")
	require.NoError(t, err)

	_, err = r.Create()
	assert.ErrorIs(t, err, ErrTooManySessions)
	assert.Equal(t, 1, r.Len())
}

func strip(m domain.Message) domain.Message {
	return domain.Message{Role: m.Role, Content: m.Content, Incomplete: m.Incomplete}
}
