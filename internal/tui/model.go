package tui

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"ragflow/internal/frontend"
	"ragflow/internal/workflow"
)

// FrontendPort is the TUI-facing subset of the event client.
type FrontendPort interface {
	SaveUpload(name string, r io.Reader) (string, error)
	IngestFile(ctx context.Context, path string) (string, error)
	Ask(ctx context.Context, question string, topK int) (*workflow.QueryResult, error)
}

type ingestedMsg struct {
	path    string
	eventID string
	err     error
}

type answerMsg struct {
	question string
	result   *workflow.QueryResult
	err      error
}

// Model is the Bubble Tea model for the TUI application.
type Model struct {
	client    FrontendPort
	topK      int
	input     textinput.Model
	viewport  viewport.Model
	spinner   spinner.Model
	answer    *workflow.QueryResult
	status    string
	busy      bool
	ready     bool
	lastQuery string
}

// New creates a new TUI model instance.
func New(client FrontendPort, topK int) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question, or /ingest <path>"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return Model{
		client:   client,
		topK:     topK,
		input:    ti,
		viewport: vp,
		spinner:  sp,
		status:   "Ready. Type a question or /ingest <path>.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		// account for frames around result and query boxes
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		totalHeaderLines := 1                                    // header
		totalFooterLines := 1                                    // status
		reserved := totalHeaderLines + totalFooterLines + qh + 1 // 1 spacer
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.renderAnswer())
		return m, nil
	case ingestedMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
		} else {
			m.status = fmt.Sprintf("Ingest of %s queued (event %s).", filepath.Base(msg.path), msg.eventID)
		}
		return m, nil
	case answerMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			m.answer = nil
		} else {
			m.status = fmt.Sprintf("Answer for %q from %d contexts", msg.question, msg.result.NumContexts)
			m.answer = msg.result
			m.lastQuery = msg.question
		}
		m.viewport.SetContent(m.renderAnswer())
		return m, nil
	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		// Global quits
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			line := strings.TrimSpace(m.input.Value())
			if line == "" || m.busy {
				return m, nil
			}
			m.input.SetValue("")
			m.busy = true
			if path, ok := ingestPath(line); ok {
				if path == "" {
					m.busy = false
					m.status = "Usage: /ingest <path>"
					return m, nil
				}
				m.status = "Uploading " + path
				return m, tea.Batch(m.spinner.Tick, m.ingestCmd(path))
			}
			m.status = "Searching..."
			return m, tea.Batch(m.spinner.Tick, m.askCmd(line))
		case "pgdown", "pgup":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// ingestPath reports whether line is an /ingest command and returns its argument.
func ingestPath(line string) (string, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 || fields[0] != "/ingest" {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(line, "/ingest")), true
}

func (m Model) ingestCmd(path string) tea.Cmd {
	client := m.client
	return func() tea.Msg {
		f, err := os.Open(path)
		if err != nil {
			return ingestedMsg{path: path, err: err}
		}
		defer f.Close()
		saved, err := client.SaveUpload(filepath.Base(path), f)
		if err != nil {
			return ingestedMsg{path: path, err: err}
		}
		id, err := client.IngestFile(context.Background(), saved)
		return ingestedMsg{path: saved, eventID: id, err: err}
	}
}

func (m Model) askCmd(question string) tea.Cmd {
	client, topK := m.client, m.topK
	return func() tea.Msg {
		res, err := client.Ask(context.Background(), question, topK)
		return answerMsg{question: question, result: res, err: err}
	}
}

// View renders the TUI layout and current answer.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("RAG PDF Q&A")
	input := queryBoxStyle.Render(m.input.View())
	statusText := m.status
	if m.busy {
		statusText = m.spinner.View() + " " + statusText
	}
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(statusText)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) renderAnswer() string {
	if m.answer == nil {
		return "No answer yet."
	}
	text := frontend.RenderAnswer(m.answer)
	answer, sources, _ := strings.Cut(text, "\n\nSources:\n")
	body := highlightBestSentence(answer, m.lastQuery)
	if sources != "" {
		body += "\n\n" + sourceStyle.Render("Sources:\n"+sources)
	}
	return body
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	sourceStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	unicodeWordRe  = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe     = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
)

// highlightBestSentence emphasises the sentence sharing the most words with the query.
func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	var sentences []string
	last := 0
	for _, loc := range sentenceRe.FindAllStringIndex(text, -1) {
		sentences = append(sentences, text[loc[0]:loc[1]])
		last = loc[1]
	}
	if tail := strings.TrimSpace(text[last:]); tail != "" {
		sentences = append(sentences, tail)
	}
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 || len(sentences) == 1 {
		return strings.Join(trimAll(sentences), " ")
	}
	bestIdx := 0
	bestScore := -1
	for i, s := range sentences {
		score := tokenOverlapScore(qTokens, s)
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	sentences = trimAll(sentences)
	sentences[bestIdx] = highlightStyle.Render(sentences[bestIdx])
	return strings.Join(sentences, " ")
}

func trimAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = strings.TrimSpace(s)
	}
	return out
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	tokens := unicodeWordRe.FindAllString(strings.ToLower(sentence), -1)
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
