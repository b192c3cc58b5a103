package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"reportmate/internal/domain"
	"reportmate/internal/service"
	"reportmate/internal/textproc"
)

// Port is the TUI-facing subset of a retrieval session.
type Port interface {
	Search(ctx context.Context, query string, k int) ([]domain.RetrievalHit, error)
	Assemble(ctx context.Context, topic string) (service.Assembly, error)
}

type mode int

const (
	searchMode mode = iota
	contextMode
)

func (m mode) String() string {
	if m == contextMode {
		return "section context"
	}
	return "search"
}

type keyMap struct {
	Quit, Mode, Run, Next, Prev key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(key.WithKeys("ctrl+c", "ctrl+d")),
	Mode: key.NewBinding(key.WithKeys("tab")),
	Run:  key.NewBinding(key.WithKeys("enter")),
	Next: key.NewBinding(key.WithKeys("down")),
	Prev: key.NewBinding(key.WithKeys("up")),
}

type result struct {
	section string
	hit     domain.RetrievalHit
}

// Model browses one retrieval session.
type Model struct {
	ctx       context.Context
	port      Port
	topK      int
	mode      mode
	input     textinput.Model
	viewport  viewport.Model
	results   []result
	summary   string
	status    string
	cursor    int
	ready     bool
	lastQuery string
}

func New(ctx context.Context, port Port, summary string, topK int) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Type query and press Enter (Tab: switch mode)"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{ctx: ctx, port: port, topK: topK, input: ti, viewport: vp, summary: summary, status: "Loaded. Type to search."}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = resultsHeight(msg.Height)
		m.viewport.SetContent(m.renderCurrentResult())
		return m, nil
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Mode):
			m.mode = 1 - m.mode
			m.status = "Mode: " + m.mode.String()
			return m, nil
		case key.Matches(msg, keys.Run):
			if q := strings.TrimSpace(m.input.Value()); q != "" {
				m = m.run(q)
				m.viewport.SetContent(m.renderCurrentResult())
				return m, nil
			}
		case key.Matches(msg, keys.Next) && len(m.results) > 0:
			m.cursor = (m.cursor + 1) % len(m.results)
			m.viewport.SetContent(m.renderCurrentResult())
			return m, nil
		case key.Matches(msg, keys.Prev) && len(m.results) > 0:
			m.cursor = (m.cursor - 1 + len(m.results)) % len(m.results)
			m.viewport.SetContent(m.renderCurrentResult())
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// resultsHeight is the viewport height left after the header, summary,
// query box, status line and the result box frame.
func resultsHeight(total int) int {
	const headerLines, footerLines, spacer = 2, 1, 1
	_, resultFrame := resultBoxStyle.GetFrameSize()
	_, queryFrame := queryBoxStyle.GetFrameSize()
	free := total - headerLines - footerLines - spacer - queryFrame
	return max(3, free-resultFrame)
}

func (m Model) run(q string) Model {
	m.results = nil
	m.cursor = 0
	m.lastQuery = q
	if m.mode == searchMode {
		hits, err := m.port.Search(m.ctx, q, m.topK)
		if err != nil {
			m.status = "Error: " + err.Error()
			return m
		}
		for _, h := range hits {
			m.results = append(m.results, result{hit: h})
		}
		m.status = fmt.Sprintf("%d results for %q", len(hits), q)
		return m
	}

	asm, err := m.port.Assemble(m.ctx, q)
	if err != nil {
		m.status = "Error: " + err.Error()
		return m
	}
	for _, sc := range asm.Sections {
		for _, h := range sc.Hits {
			m.results = append(m.results, result{section: sc.Section.Name, hit: h})
		}
	}
	if asm.Degraded || asm.Reason != "" {
		m.status = fmt.Sprintf("No section hits for %q (%s); generation would use the first pages", q, asm.Reason)
		return m
	}
	m.status = fmt.Sprintf("Context for %q: %d sections, %d passages", q, len(asm.Sections), len(m.results))
	return m
}

// View stacks header, corpus summary, the current result, the query box
// and the status line.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		headerStyle.Render("Report Mate  ["+m.mode.String()+"]"),
		summaryStyle.Render(m.summary),
		resultBoxStyle.Render(m.viewport.View()),
		queryBoxStyle.Render(m.input.View()),
		statusStyle.Render(m.status),
	)
}

func (m Model) renderCurrentResult() string {
	if len(m.results) == 0 {
		return "No results yet."
	}
	r := m.results[m.cursor]
	title := fmt.Sprintf("Result %d/%d  score=%.3f  %s", m.cursor+1, len(m.results), r.hit.Score, labelStyle.Render(r.hit.Label()))
	if r.section != "" {
		title = r.section + "  " + title
	}
	body := highlightBestSentence(r.hit.Chunk.Text, m.lastQuery)
	return title + "\n\n" + body
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	labelStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	headerStyle    = lipgloss.NewStyle().Bold(true)
	summaryStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

// highlightBestSentence renders text with the sentence sharing the most
// distinct words with query emphasised. The first sentence wins ties.
func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := textproc.SplitSentences(text)
	if best := bestSentence(sentences, textproc.Set(textproc.Words(query))); best >= 0 {
		sentences[best] = highlightStyle.Render(sentences[best])
	}
	return strings.Join(sentences, " ")
}

// bestSentence returns the index of the sentence with the largest overlap,
// or -1 when the query has no words.
func bestSentence(sentences []string, query map[string]struct{}) int {
	if len(query) == 0 {
		return -1
	}
	best, bestScore := 0, -1
	for i, s := range sentences {
		if score := overlap(query, s); score > bestScore {
			best, bestScore = i, score
		}
	}
	return best
}

func overlap(query map[string]struct{}, sentence string) int {
	n := 0
	for w := range textproc.Set(textproc.Words(sentence)) {
		if _, ok := query[w]; ok {
			n++
		}
	}
	return n
}
