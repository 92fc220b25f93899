// Package ui is the terminal screen for one content item.
package ui

import (
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/muesli/reflow/truncate"

	"github.com/sadhana/recital/playback"
	"github.com/sadhana/recital/playback/lines"
)

const (
	ellipsis = "…"

	// seekStepMs is how far left and right move a recording.
	seekStepMs = 10_000
	// seekStepUnits is how far left and right move a reading.
	seekStepUnits = playback.ProgressScale / 20
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true)
	subtitleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	lineStyle     = lipgloss.NewStyle().Background(lipgloss.Color("226")).Foreground(lipgloss.Color("0")).Bold(true)
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#626262"))
)

type (
	// stateMsg signals that at least one observed snapshot changed.
	stateMsg struct{}
	// contentMsg carries a refreshed version of the bound content.
	contentMsg playback.Content
)

// Screen shows one content item and drives its TargetPolicy.
type Screen struct {
	policy  *playback.TargetPolicy
	content playback.Content
	lines   []string
	changes <-chan playback.Content

	spinner spinner.Model
	scope   playback.Scope
	notify  chan struct{}

	mu     sync.Mutex
	status Status

	width    int
	height   int
	released bool
}

// NewScreen creates a screen for c. Refreshed versions of the content
// received on changes are re-bound; changes may be nil.
func NewScreen(policy *playback.TargetPolicy, c playback.Content, changes <-chan playback.Content) *Screen {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	s := &Screen{
		policy:  policy,
		changes: changes,
		spinner: sp,
		notify:  make(chan struct{}, 1),
		width:   80,
	}
	s.setContent(c)
	return s
}

func (s *Screen) setContent(c playback.Content) {
	s.content = c
	s.lines = lines.Split(c.NarrationText)
	s.mu.Lock()
	s.status.ContentType = c.Type
	s.status.ContentID = c.ID
	s.mu.Unlock()
}

// Status returns the latest combined status.
func (s *Screen) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Screen) observe(update func(*Status)) {
	s.mu.Lock()
	update(&s.status)
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Init subscribes to the playback state and binds the content.
func (s *Screen) Init() tea.Cmd {
	s.scope.Add(s.policy.Subscribe(func(st playback.PolicyState) {
		s.observe(func(v *Status) { v.Policy = st })
	}))
	s.scope.Add(s.policy.Coordinator().Subscribe(func(st playback.PlaybackState) {
		s.observe(func(v *Status) { v.Playback = st })
	}))
	s.scope.Add(s.policy.Narration().Subscribe(func(st playback.NarrationState) {
		s.observe(func(v *Status) { v.Narration = st })
	}))
	s.policy.Bind(s.content)

	return tea.Batch(s.spinner.Tick, s.waitForState(), s.waitForContent())
}

func (s *Screen) waitForState() tea.Cmd {
	return func() tea.Msg {
		<-s.notify
		return stateMsg{}
	}
}

func (s *Screen) waitForContent() tea.Cmd {
	if s.changes == nil {
		return nil
	}
	return func() tea.Msg {
		c, ok := <-s.changes
		if !ok {
			return nil
		}
		return contentMsg(c)
	}
}

// Update handles keys and state notifications.
func (s *Screen) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		s.width, s.height = msg.Width, msg.Height

	case stateMsg:
		return s, s.waitForState()

	case contentMsg:
		c := playback.Content(msg)
		log.Debug("content refreshed", "content", c.Type+"/"+c.ID)
		s.setContent(c)
		s.policy.Bind(c)
		return s, s.waitForContent()

	case spinner.TickMsg:
		var cmd tea.Cmd
		s.spinner, cmd = s.spinner.Update(msg)
		return s, cmd

	case tea.KeyMsg:
		return s, s.handleKey(msg)
	}
	return s, nil
}

func (s *Screen) handleKey(msg tea.KeyMsg) tea.Cmd {
	st := s.Status()
	coord := s.policy.Coordinator()
	narration := s.policy.Narration()

	switch msg.String() {
	case "q", "esc", "ctrl+c":
		s.Release()
		return tea.Quit
	case " ", "enter":
		s.policy.OnToggleRequested()
	case "s":
		s.policy.Stop()
	case "m":
		s.policy.SetPreference(nextPreference(st.Policy.Preference))
	case "f":
		s.policy.FallbackToRead()
	case "c":
		narration.CycleSpeed()
	case "n":
		coord.SkipToNext()
	case "p":
		coord.SkipToPrevious()
	case "right", "l":
		s.seek(st, 1)
	case "left", "h":
		s.seek(st, -1)
	}
	return nil
}

func (s *Screen) seek(st Status, dir int64) {
	if st.Policy.Target == playback.TargetSung {
		if st.Playback.IsTrack(s.content.Type, s.content.ID) {
			s.policy.Coordinator().SeekTo(st.Playback.PositionMs + dir*seekStepMs)
		}
		return
	}
	s.policy.Narration().SeekTo(st.Narration.Progress + int(dir)*seekStepUnits)
}

// Release unsubscribes and releases the policy. It is safe to call more
// than once.
func (s *Screen) Release() {
	if s.released {
		return
	}
	s.released = true
	s.scope.Close()
	s.policy.Release()
}

// View renders the screen.
func (s *Screen) View() string {
	st := s.Status()
	width := max(s.width, 20)

	var b strings.Builder
	b.WriteString(titleStyle.Render(truncate.StringWithTail(s.content.Title, uint(width), ellipsis)))
	if s.content.Subtitle != "" {
		b.WriteString("\n" + subtitleStyle.Render(truncate.StringWithTail(s.content.Subtitle, uint(width), ellipsis)))
	}
	b.WriteString("\n\n")

	status := st.DetailedStatus(width)
	if st.current().status == playback.StatusLoading {
		status = s.spinner.View() + " " + status
	}
	b.WriteString(status)
	b.WriteString("\n\n")

	current := st.CurrentLine()
	for i, line := range s.visibleLines(current) {
		text := truncate.StringWithTail(line.text, uint(width), ellipsis)
		if line.index == current {
			text = lineStyle.Render(text)
		}
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(text)
	}

	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render(truncate.StringWithTail(
		"space play/pause • s stop • ←/→ seek • c speed • m mode • f read instead • n/p next/prev • q quit",
		uint(width), ellipsis)))
	return b.String()
}

type numbered struct {
	index int
	text  string
}

// visibleLines returns the lines that fit, scrolled to keep current in
// view.
func (s *Screen) visibleLines(current int) []numbered {
	room := len(s.lines)
	if s.height > 0 {
		room = max(s.height-12, 3)
	}
	start := 0
	if current >= room {
		start = current - room/2
	}
	end := min(start+room, len(s.lines))
	if start > end {
		start = end
	}

	out := make([]numbered, 0, end-start)
	for i := start; i < end; i++ {
		out = append(out, numbered{index: i, text: s.lines[i]})
	}
	return out
}

func nextPreference(p playback.Preference) playback.Preference {
	switch p {
	case playback.PreferenceAuto:
		return playback.PreferenceForceSing
	case playback.PreferenceForceSing:
		return playback.PreferenceForceRead
	default:
		return playback.PreferenceAuto
	}
}

// NewProgram returns a program running s full screen.
func NewProgram(s *Screen) *tea.Program {
	return tea.NewProgram(s, tea.WithAltScreen())
}
