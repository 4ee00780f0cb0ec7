package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComposeWithoutContextIsIdentity(t *testing.T) {
	for _, in := range []string{"", "  tofu?  ", "What is 100% chili %s?", "麻婆豆腐\n"} {
		assert.Equal(t, in, Compose(in, ""))
	}
}

func TestComposeWithContext(t *testing.T) {
	got := Compose("How do I make mapo tofu?", "chunk one\n\nchunk two")
	want := "Answer the following question using the context below:\n\n" +
		"Context:\nchunk one\n\nchunk two\n\n" +
		"Question:\nHow do I make mapo tofu?"
	assert.Equal(t, want, got)
}

func TestComposeKeepsQuestionVerbatim(t *testing.T) {
	q := "50% less oil %d?"
	got := Compose(q, "ctx")
	assert.True(t, strings.HasSuffix(got, "Question:\n"+q))
}

func TestSystemPromptCarriesExamples(t *testing.T) {
	assert.Contains(t, SystemPrompt, "Mapo Tofu (麻婆豆腐)")
	assert.Contains(t, SystemPrompt, "Kung Pao Chicken (宫保鸡丁)")
	assert.Equal(t, 2, strings.Count(SystemPrompt, "**Assistant:**"))
	assert.Contains(t, SystemPrompt, "Always follow this format.")
}
