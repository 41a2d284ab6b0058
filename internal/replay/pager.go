package replay

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fsnotify/fsnotify"
	"github.com/muesli/reflow/wordwrap"
)

var (
	pagerTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	pagerInfoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	liveStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("10"))
)

// Render loads a journal and returns its formatted timeline.
func Render(path string, verbose bool, opts ...ReplayerOption) (string, error) {
	var buf bytes.Buffer
	if err := New(&buf, verbose, opts...).ReplayFile(path); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Pager shows a rendered journal in a scrollable terminal view.
type Pager struct {
	title  string
	render func() (string, error)
}

// NewPager creates a pager. render is called once up front and again on
// every journal change in follow mode.
func NewPager(title string, render func() (string, error)) *Pager {
	return &Pager{title: title, render: render}
}

// Follow opens the pager and re-renders whenever the journal at path is
// written. It returns when the user quits.
func (p *Pager) Follow(path string) error {
	content, err := p.render()
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("failed to watch journal: %w", err)
	}

	m := newPagerModel(p.title, content)
	m.render = p.render
	m.watcher = watcher

	_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion()).Run()
	return err
}

// journalChangedMsg reports a write to the followed journal.
type journalChangedMsg struct{}

// watchJournal blocks until the watcher reports a write or create.
func watchJournal(w *fsnotify.Watcher) tea.Cmd {
	return func() tea.Msg {
		for {
			select {
			case event, ok := <-w.Events:
				if !ok {
					return nil
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					// let the appending writer finish its line
					time.Sleep(50 * time.Millisecond)
					return journalChangedMsg{}
				}
			case _, ok := <-w.Errors:
				if !ok {
					return nil
				}
			}
		}
	}
}

type pagerModel struct {
	title    string
	content  string
	wrapped  string
	viewport viewport.Model
	ready    bool

	render  func() (string, error)
	watcher *fsnotify.Watcher
	updated time.Time

	searching bool
	input     textinput.Model
	query     string
	matches   []int
	current   int
}

func newPagerModel(title, content string) *pagerModel {
	return &pagerModel{title: title, content: content}
}

func (m *pagerModel) live() bool { return m.watcher != nil }

func (m *pagerModel) Init() tea.Cmd {
	if m.live() {
		return watchJournal(m.watcher)
	}
	return nil
}

func (m *pagerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.searching {
		return m.updateSearch(msg)
	}

	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case journalChangedMsg:
		m.reload()
		if m.live() {
			cmds = append(cmds, watchJournal(m.watcher))
		}

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "esc":
			if m.query == "" {
				return m, tea.Quit
			}
			m.clearSearch()
		case "g":
			m.viewport.GotoTop()
		case "G", "f":
			m.viewport.GotoBottom()
		case "/":
			m.searching = true
			m.input = textinput.New()
			m.input.Placeholder = "Search..."
			m.input.CharLimit = 100
			m.input.Width = 40
			m.input.SetValue(m.query)
			m.input.Focus()
			return m, textinput.Blink
		case "n":
			m.step(1)
		case "N":
			m.step(-1)
		}

	case tea.WindowSizeMsg:
		height := msg.Height - 2 // header and footer
		if !m.ready {
			m.viewport = viewport.New(msg.Width, height)
			m.viewport.YPosition = 1
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = height
		}
		m.setContent()
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *pagerModel) updateSearch(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "enter":
			m.searching = false
			m.query = m.input.Value()
			m.search()
			m.jump()
			return m, nil
		case "esc", "ctrl+c":
			m.searching = false
			m.clearSearch()
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// reload re-renders the journal. A reader parked at the bottom stays there.
func (m *pagerModel) reload() {
	if m.render == nil {
		return
	}
	content, err := m.render()
	if err != nil {
		return
	}
	follow := m.ready && m.viewport.AtBottom()
	offset := m.viewport.YOffset
	m.content = content
	m.updated = time.Now()
	if !m.ready {
		return
	}
	m.setContent()
	if follow {
		m.viewport.GotoBottom()
	} else {
		m.viewport.SetYOffset(offset)
	}
}

func (m *pagerModel) setContent() {
	m.wrapped = wrapContent(m.content, m.viewport.Width)
	m.viewport.SetContent(m.wrapped)
	if m.query != "" {
		m.search()
	}
}

func (m *pagerModel) clearSearch() {
	m.query = ""
	m.matches = nil
	m.current = 0
}

// search records the wrapped lines containing the query, ignoring case.
func (m *pagerModel) search() {
	m.matches = nil
	m.current = 0
	if m.query == "" {
		return
	}
	q := strings.ToLower(m.query)
	for i, line := range strings.Split(m.wrapped, "\n") {
		if strings.Contains(strings.ToLower(line), q) {
			m.matches = append(m.matches, i)
		}
	}
}

func (m *pagerModel) step(delta int) {
	if len(m.matches) == 0 {
		return
	}
	m.current = (m.current + delta + len(m.matches)) % len(m.matches)
	m.jump()
}

// jump centres the current match in the viewport.
func (m *pagerModel) jump() {
	if len(m.matches) == 0 {
		return
	}
	m.viewport.SetYOffset(m.matches[m.current] - m.viewport.Height/2)
}

func (m *pagerModel) View() string {
	if !m.ready {
		return "\n  Loading..."
	}

	title := pagerTitleStyle.Render(m.title)
	header := title + pagerInfoStyle.Render(strings.Repeat("─", max(0, m.viewport.Width-lipgloss.Width(title))))

	var footer string
	switch {
	case m.searching:
		footer = warnStyle.Render("/") + m.input.View()
	default:
		help := " q: quit │ /: search │ g/G: top/bottom "
		switch {
		case m.query != "" && len(m.matches) == 0:
			help = " " + errorStyle.Render("Pattern not found") + " │ /: search "
		case len(m.matches) > 0:
			help = fmt.Sprintf(" %s │ n/N: next/prev │ esc: clear ", warnStyle.Render(fmt.Sprintf("[%d/%d]", m.current+1, len(m.matches))))
		case m.live():
			help = " " + liveStyle.Render("● LIVE") + " │ q: quit │ /: search │ f: follow "
		}
		info := fmt.Sprintf(" %3.f%% ", m.viewport.ScrollPercent()*100)
		fill := max(0, m.viewport.Width-lipgloss.Width(help)-lipgloss.Width(info))
		footer = pagerInfoStyle.Render(help) + pagerInfoStyle.Render(strings.Repeat("─", fill)) + pagerInfoStyle.Render(info)
	}

	return header + "\n" + m.viewport.View() + "\n" + footer
}

// wrapContent wraps lines to width. Timeline rows continue under their
// content column rather than under the sequence number.
func wrapContent(content string, width int) string {
	if width <= 0 {
		return content
	}
	var out []string
	for _, line := range strings.Split(content, "\n") {
		if lipgloss.Width(line) <= width {
			out = append(out, line)
			continue
		}
		cut := strings.LastIndex(line, "│ ")
		if cut < 0 {
			out = append(out, strings.Split(wordwrap.String(line, width), "\n")...)
			continue
		}
		prefix, body := line[:cut+len("│ ")], line[cut+len("│ "):]
		indent := lipgloss.Width(prefix)
		rows := strings.Split(wordwrap.String(body, max(20, width-indent)), "\n")
		out = append(out, prefix+rows[0])
		for _, row := range rows[1:] {
			out = append(out, strings.Repeat(" ", indent)+row)
		}
	}
	return strings.Join(out, "\n")
}
