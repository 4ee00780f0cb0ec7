package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"recipechat/internal/app"
	"recipechat/internal/chat"
	"recipechat/internal/domain"
	"recipechat/internal/service"
	"recipechat/internal/session"
)

// Builder wires the application once an API key is known.
type Builder func(apiKey string) (*app.App, error)

type focus int

const (
	focusChat focus = iota
	focusImage
)

const sidebarWidth = 34

type (
	indexBuiltMsg struct {
		report service.Report
		err    error
	}
	turnStartedMsg struct {
		turn *chat.Turn
		err  error
	}
	fragmentMsg struct{ text string }
	turnDoneMsg struct{ err error }
	imageMsg    struct {
		image domain.Image
		err   error
	}
)

// Model is the Bubble Tea model for the chat screen.
type Model struct {
	ctx   context.Context
	build Builder
	app   *app.App
	sess  *session.Session

	keyInput   textinput.Model
	chatInput  textinput.Model
	imageInput textinput.Model
	focus      focus
	viewport   viewport.Model

	useRAG     bool
	indexReady bool
	summary    string
	status     string
	warning    string

	streaming bool
	turn      *chat.Turn
	cancel    context.CancelFunc
	partial   strings.Builder

	image        *domain.Image
	imageLoading bool

	ready bool
	width int
}

// New creates the model. With a non-empty apiKey the key prompt is skipped.
func New(ctx context.Context, build Builder, apiKey string, useRAG bool) *Model {
	key := textinput.New()
	key.Prompt = "API key: "
	key.Placeholder = "sk-..."
	key.EchoMode = textinput.EchoPassword
	key.EchoCharacter = '•'
	key.Focus()

	ci := textinput.New()
	ci.Prompt = "> "
	ci.Placeholder = "Ask about Chinese recipes or cooking here..."
	ci.CharLimit = 0

	ii := textinput.New()
	ii.Prompt = "🎨 "
	ii.Placeholder = "Describe your dish (Enter to generate)"
	ii.CharLimit = 0

	m := &Model{
		ctx:        ctx,
		build:      build,
		keyInput:   key,
		chatInput:  ci,
		imageInput: ii,
		viewport:   viewport.New(0, 0),
		useRAG:     useRAG,
		status:     "Please enter your API key to continue.",
	}
	if apiKey != "" {
		m.connect(apiKey)
	}
	return m
}

// Init starts the cursor blink and, when already connected, the index build.
func (m *Model) Init() tea.Cmd {
	if m.app != nil {
		return tea.Batch(textinput.Blink, m.buildIndex())
	}
	return textinput.Blink
}

func (m *Model) connect(apiKey string) {
	a, err := m.build(apiKey)
	if err != nil {
		m.warning = err.Error()
		return
	}
	m.app = a
	m.sess = a.NewSession()
	m.keyInput.Blur()
	m.chatInput.Focus()
	m.warning = ""
	m.status = "Building document index..."
}

func (m *Model) buildIndex() tea.Cmd {
	ix := m.app.Index
	if ix == nil {
		return nil
	}
	ctx := m.ctx
	return func() tea.Msg {
		_, err := ix.Build(ctx)
		rep, _ := ix.Report()
		return indexBuiltMsg{report: rep, err: err}
	}
}

// Update handles key, window and async events.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		m.width = msg.Width
		_, fh := transcriptStyle.GetFrameSize()
		reserved := 2 + 2 + 1 + fh // header + summary, two inputs, status
		m.viewport.Width = max(20, msg.Width-sidebarWidth-4)
		m.viewport.Height = max(3, msg.Height-reserved)
		m.refresh()
		return m, nil

	case indexBuiltMsg:
		if msg.err != nil {
			m.warning = "Document index unavailable: " + msg.err.Error()
			m.status = "Answering without document search."
			return m, nil
		}
		m.indexReady = true
		m.summary = msg.report.Summary
		m.status = fmt.Sprintf("Indexed %d chunks.", msg.report.Chunks)
		if failed := msg.report.Failed(); len(failed) > 0 {
			m.warning = fmt.Sprintf("%d document(s) skipped: %v", len(failed), failed[0].Err)
		}
		return m, nil

	case turnStartedMsg:
		if msg.err != nil {
			m.endTurn()
			if errors.Is(msg.err, context.Canceled) {
				m.status = "Reply cancelled."
			} else {
				m.showErr(msg.err)
			}
			m.refresh()
			return m, nil
		}
		m.turn = msg.turn
		if n := msg.turn.Notice(); n != "" {
			m.warning = n
		}
		return m, waitFragment(msg.turn)

	case fragmentMsg:
		m.partial.WriteString(msg.text)
		m.refresh()
		return m, waitFragment(m.turn)

	case turnDoneMsg:
		aborted := m.turn != nil && errors.Is(m.turn.Err(), chat.ErrAborted)
		m.endTurn()
		switch {
		case msg.err == nil:
			m.status = "Ready."
		case aborted, errors.Is(msg.err, context.Canceled):
			m.status = "Reply cancelled."
		default:
			m.showErr(msg.err)
		}
		m.refresh()
		return m, nil

	case imageMsg:
		m.imageLoading = false
		if msg.err != nil {
			m.showErr(msg.err)
			return m, nil
		}
		img := msg.image
		m.image = &img
		m.status = "🍛 Your dish is ready."
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD:
			m.abort()
			return m, tea.Quit
		}
		if m.app == nil {
			return m.updateKeyPrompt(msg)
		}
		switch msg.Type {
		case tea.KeyEsc:
			if m.streaming {
				m.abort()
				m.status = "Cancelling..."
			}
			return m, nil
		case tea.KeyTab:
			m.toggleFocus()
			return m, nil
		case tea.KeyCtrlR:
			m.useRAG = !m.useRAG
			return m, nil
		case tea.KeyCtrlN:
			if m.streaming {
				m.warning = session.ErrBusy.Error()
				return m, nil
			}
			if err := m.sess.Reset(); err != nil {
				m.warning = err.Error()
				return m, nil
			}
			m.warning = ""
			m.status = "New conversation."
			m.refresh()
			return m, nil
		case tea.KeyEnter:
			if m.focus == focusImage {
				return m, m.generateImage()
			}
			return m, m.submit()
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}

	var cmd tea.Cmd
	switch {
	case m.app == nil:
		m.keyInput, cmd = m.keyInput.Update(msg)
	case m.focus == focusImage:
		m.imageInput, cmd = m.imageInput.Update(msg)
	default:
		m.chatInput, cmd = m.chatInput.Update(msg)
	}
	return m, cmd
}

func (m *Model) updateKeyPrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type != tea.KeyEnter {
		var cmd tea.Cmd
		m.keyInput, cmd = m.keyInput.Update(msg)
		return m, cmd
	}
	key := strings.TrimSpace(m.keyInput.Value())
	if key == "" {
		m.warning = domain.ErrMissingCredential.Error()
		return m, nil
	}
	m.connect(key)
	if m.app == nil {
		return m, nil
	}
	m.keyInput.Reset()
	m.refresh()
	return m, m.buildIndex()
}

func (m *Model) toggleFocus() {
	if m.focus == focusChat {
		m.focus = focusImage
		m.chatInput.Blur()
		m.imageInput.Focus()
		return
	}
	m.focus = focusChat
	m.imageInput.Blur()
	m.chatInput.Focus()
}

func (m *Model) submit() tea.Cmd {
	text := m.chatInput.Value()
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if m.streaming {
		m.warning = session.ErrBusy.Error()
		return nil
	}
	m.chatInput.Reset()
	m.warning = ""
	m.status = "Thinking..."
	m.streaming = true
	m.partial.Reset()

	ctx, cancel := context.WithCancel(m.ctx)
	m.cancel = cancel
	svc, sess, useRAG := m.app.Chat, m.sess, m.useRAG
	m.refresh()
	return func() tea.Msg {
		turn, err := svc.Submit(ctx, sess, text, useRAG)
		return turnStartedMsg{turn: turn, err: err}
	}
}

func waitFragment(turn *chat.Turn) tea.Cmd {
	return func() tea.Msg {
		f, err := turn.Next()
		if errors.Is(err, io.EOF) {
			return turnDoneMsg{}
		}
		if err != nil {
			return turnDoneMsg{err: err}
		}
		return fragmentMsg{text: f.Text}
	}
}

func (m *Model) abort() {
	if m.cancel != nil {
		m.cancel()
	}
	if m.turn != nil {
		m.turn.Close()
	}
}

func (m *Model) endTurn() {
	m.streaming = false
	m.turn = nil
	m.partial.Reset()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

func (m *Model) generateImage() tea.Cmd {
	if m.imageLoading {
		return nil
	}
	prompt := m.imageInput.Value()
	gen := m.app.Images
	m.warning = ""
	if strings.TrimSpace(prompt) != "" {
		m.imageLoading = true
		m.status = "Generating image..."
	}
	ctx := m.ctx
	return func() tea.Msg {
		img, err := gen.Generate(ctx, prompt, "")
		return imageMsg{image: img, err: err}
	}
}

func (m *Model) showErr(err error) {
	if domain.IsPrecondition(err) || errors.Is(err, session.ErrBusy) {
		m.warning = err.Error()
		return
	}
	m.status = "Error: " + err.Error()
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

// View renders the layout.
func (m *Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := titleStyle.Render("🍜 Chinese Cuisine Chatbot")
	if m.app == nil {
		return header + "\n\n" + m.keyInput.View() + "\n" + m.footer()
	}

	rag := "RAG off"
	switch {
	case m.useRAG && m.indexReady:
		rag = "RAG on"
	case m.useRAG:
		rag = "RAG on (index loading)"
	}
	header += "  " + dimStyle.Render(rag+"  ·  Tab switch input · Ctrl+R RAG · Ctrl+N new · Esc cancel")

	summary := dimStyle.Width(max(20, m.width-2)).Render(truncate(m.summary, 200))
	body := lipgloss.JoinHorizontal(lipgloss.Top,
		transcriptStyle.Render(m.viewport.View()),
		sidebarStyle.Width(sidebarWidth).Render(m.renderSidebar()),
	)
	inputs := m.chatInput.View() + "\n" + m.imageInput.View()
	return header + "\n" + summary + "\n" + body + "\n" + inputs + "\n" + m.footer()
}

func (m *Model) footer() string {
	out := statusStyle.Render(m.status)
	if m.warning != "" {
		out += "  " + warnStyle.Render("⚠ "+m.warning)
	}
	return out
}

func (m *Model) renderTranscript() string {
	if m.sess == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(dimStyle.Render("Welcome! Ask about Chinese recipes based on ingredients or dishes from our reference books."))
	for _, msg := range m.sess.Transcript() {
		b.WriteString("\n\n")
		b.WriteString(renderMessage(msg.Role, msg.Content, msg.Incomplete))
	}
	if m.streaming && m.partial.Len() > 0 {
		b.WriteString("\n\n")
		b.WriteString(renderMessage(domain.RoleAssistant, m.partial.String(), false))
	}
	return b.String()
}

func renderMessage(role domain.Role, content string, incomplete bool) string {
	label := userStyle.Render("You")
	if role == domain.RoleAssistant {
		label = assistantStyle.Render("Chef")
	}
	if incomplete {
		label += " " + warnStyle.Render("[incomplete]")
	}
	return label + "\n" + content
}

func (m *Model) renderSidebar() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("📜 Chat History"))
	history := m.sess.History()
	if len(history) == 0 {
		b.WriteString("\n" + dimStyle.Render("Nothing yet."))
	}
	for _, p := range history {
		fmt.Fprintf(&b, "\n🗨️ %s: %s", capitalize(string(p.Role)), p.Text)
	}
	b.WriteString("\n\n" + titleStyle.Render("🎨 Dish Image"))
	switch {
	case m.imageLoading:
		b.WriteString("\n" + dimStyle.Render("Generating..."))
	case m.image != nil:
		b.WriteString("\n" + m.image.URL)
		if m.image.RevisedPrompt != "" {
			b.WriteString("\n" + dimStyle.Render(truncate(m.image.RevisedPrompt, 120)))
		}
	}
	return b.String()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

var (
	titleStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	dimStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	userStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	assistantStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	transcriptStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	sidebarStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("214")).Padding(0, 1)
)
