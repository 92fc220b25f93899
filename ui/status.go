package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"

	"github.com/sadhana/recital/playback"
)

// Status combines the snapshots one screen observes into what it shows.
type Status struct {
	ContentType string
	ContentID   string
	Policy      playback.PolicyState
	Playback    playback.PlaybackState
	Narration   playback.NarrationState
}

// view is the state of whichever engine renders this screen's content.
type view struct {
	status   playback.Status
	playing  bool
	elapsed  string
	total    string
	progress float64 // 0 to 1
	line     int     // -1 outside synthesized reading
	lines    int
	speed    string
	err      error
}

func (s Status) current() view {
	if s.Policy.Target == playback.TargetSung {
		p := s.Playback
		if !p.IsTrack(s.ContentType, s.ContentID) {
			return view{status: playback.StatusIdle, line: -1, err: s.Policy.Err}
		}
		v := view{
			status:   p.Status,
			playing:  p.IsPlaying,
			elapsed:  p.ElapsedText(),
			progress: p.ProgressPercent / 100,
			line:     -1,
			err:      p.Err,
		}
		if p.DurationMs > 0 {
			v.total = p.TotalText()
		}
		if v.err == nil {
			v.err = s.Policy.Err
		}
		return v
	}

	n := s.Narration
	v := view{
		status:   n.Status,
		playing:  n.IsPlaying,
		elapsed:  n.ElapsedText,
		progress: float64(n.Progress) / playback.ProgressScale,
		line:     -1,
		err:      n.Err,
	}
	if n.IsStreamingMode {
		if n.DurationMs > 0 {
			v.total = playback.FormatMs(n.DurationMs)
		}
	} else {
		v.line = n.CurrentLine
		v.lines = n.TotalLines
		v.speed = n.SpeedLabel
	}
	if v.err == nil {
		v.err = s.Policy.Err
	}
	return v
}

// IsActive reports whether this screen's content is sounding or about to.
func (s Status) IsActive() bool {
	st := s.current().status
	return st == playback.StatusPlaying || st == playback.StatusLoading
}

// CurrentLine returns the line being read, or -1.
func (s Status) CurrentLine() int {
	v := s.current()
	if v.status == playback.StatusIdle {
		return -1
	}
	return v.line
}

// CompactStatus returns a one line status for the status bar.
func (s Status) CompactStatus() string {
	v := s.current()
	if v.status == playback.StatusIdle && v.err == nil {
		return ""
	}

	label := "Sung"
	if s.Policy.Target == playback.TargetRead {
		label = "Read"
	}
	out := lipgloss.NewStyle().Foreground(stateColor(v.status)).
		Render(fmt.Sprintf("%s %s", stateIcon(v.status), label))

	muted := lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	switch {
	case v.line >= 0 && v.lines > 0 && (v.status == playback.StatusPlaying || v.status == playback.StatusPaused):
		out += muted.Render(fmt.Sprintf(" %d/%d", v.line+1, v.lines))
	case v.total != "":
		out += muted.Render(fmt.Sprintf(" %s/%s", v.elapsed, v.total))
	}
	if v.speed != "" && v.speed != "1x" {
		out += muted.Render(" " + v.speed)
	}
	return out
}

// DetailedStatus returns a multi-line status panel.
func (s Status) DetailedStatus(width int) string {
	v := s.current()
	var lines []string

	src := s.Policy.Source
	lines = append(lines, fmt.Sprintf("Source: %s  Target: %s  Preference: %s",
		src.DisplayLabel, s.Policy.Target, s.Policy.Preference))

	state := lipgloss.NewStyle().Foreground(stateColor(v.status)).
		Render(fmt.Sprintf("%s %s", stateIcon(v.status), v.status))
	if v.total != "" {
		state += fmt.Sprintf("  %s / %s", v.elapsed, v.total)
	} else if v.line >= 0 && v.lines > 0 {
		state += fmt.Sprintf("  line %d of %d", v.line+1, v.lines)
	}
	if v.speed != "" {
		state += "  " + v.speed
	}
	lines = append(lines, state)

	if bar := s.ProgressBar(width - 4); bar != "" {
		lines = append(lines, bar)
	}

	if v.err != nil {
		msg := truncate.StringWithTail(v.err.Error(), uint(max(width-9, 10)), ellipsis)
		lines = append(lines, lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")).Render("Error: "+msg))
	}
	if s.Policy.FallbackOffered {
		lines = append(lines, lipgloss.NewStyle().Foreground(lipgloss.Color("#FFAA00")).
			Render("The recording failed. Press f to read it instead."))
	}
	return strings.Join(lines, "\n")
}

// ProgressBar renders the progress of the current engine.
func (s Status) ProgressBar(width int) string {
	if width < 10 {
		return ""
	}
	v := s.current()
	if v.status == playback.StatusIdle {
		return ""
	}

	filled := int(v.progress * float64(width))
	filled = min(max(filled, 0), width)

	on := lipgloss.NewStyle().Foreground(stateColor(v.status))
	off := lipgloss.NewStyle().Foreground(lipgloss.Color("#333333"))
	return on.Render(strings.Repeat("█", filled)) + off.Render(strings.Repeat("░", width-filled))
}

func stateColor(s playback.Status) lipgloss.Color {
	switch s {
	case playback.StatusPlaying:
		return lipgloss.Color("#00FF00")
	case playback.StatusPaused:
		return lipgloss.Color("#FFFF00")
	case playback.StatusLoading:
		return lipgloss.Color("#00AAFF")
	case playback.StatusError:
		return lipgloss.Color("#FF0000")
	default:
		return lipgloss.Color("#666666")
	}
}

func stateIcon(s playback.Status) string {
	switch s {
	case playback.StatusPlaying:
		return "▶"
	case playback.StatusPaused:
		return "⏸"
	case playback.StatusLoading:
		return "⟳"
	case playback.StatusError:
		return "✗"
	default:
		return "○"
	}
}
