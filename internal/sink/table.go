package sink

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/masahif/dataexplore/internal/crawler"
)

const (
	maxURLWidth = 70
	clearScreen = "\033[H\033[2J"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	seqStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	urlStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("5"))
	statusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	timeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	linksStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	allowedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	deniedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	failedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

var tableHeaders = []string{"#", "URL", "Status", "Time (s)", "Links", "Allowed"}

// TableSink keeps every event in a console table and redraws it after each one
type TableSink struct {
	mu     sync.Mutex
	w      io.Writer
	title  string
	clear  bool
	rows   [][]string
	events []crawler.CrawlEvent
}

// NewTableSink creates a table for domain. With clear set the screen is wiped
// before each redraw, which only makes sense on a terminal.
func NewTableSink(w io.Writer, domain string, clear bool) *TableSink {
	return &TableSink{
		w:     w,
		title: "HTTP traffic - " + strings.ToUpper(domain),
		clear: clear,
	}
}

// Consume adds the event and redraws the table
func (s *TableSink) Consume(_ context.Context, evt crawler.CrawlEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rows = append(s.rows, tableRow(evt))
	s.events = append(s.events, evt)

	var b strings.Builder
	if s.clear {
		b.WriteString(clearScreen)
	}
	b.WriteString(s.render())
	b.WriteString("\n")

	if _, err := io.WriteString(s.w, b.String()); err != nil {
		return fmt.Errorf("render table: %w", err)
	}
	return nil
}

// Render returns the current table without writing it
func (s *TableSink) Render() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.render()
}

func (s *TableSink) render() string {
	events := s.events
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderRow(true).
		Headers(tableHeaders...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if row < 0 || row >= len(events) {
				return lipgloss.NewStyle()
			}
			return cellStyle(events[row], col)
		}).
		Rows(s.rows...)

	return titleStyle.Render(s.title) + "\n" + t.Render()
}

func cellStyle(evt crawler.CrawlEvent, col int) lipgloss.Style {
	switch col {
	case 0:
		return seqStyle
	case 1:
		return urlStyle
	case 2:
		if evt.Outcome != crawler.OutcomeStatus || evt.StatusCode >= 400 {
			return failedStyle
		}
		return statusStyle
	case 3:
		return timeStyle
	case 4:
		return linksStyle
	default:
		if evt.Allowed {
			return allowedStyle
		}
		return deniedStyle
	}
}

func tableRow(evt crawler.CrawlEvent) []string {
	allowed := "No"
	if evt.Allowed {
		allowed = "Yes"
	}
	return []string{
		strconv.Itoa(evt.Sequence),
		truncateURL(evt.URL),
		evt.Label(),
		strconv.FormatFloat(evt.ElapsedSeconds(), 'f', 2, 64),
		strconv.Itoa(evt.LinkCount),
		allowed,
	}
}

// truncateURL shortens long URLs to maxURLWidth characters plus "..."
func truncateURL(u string) string {
	runes := []rune(u)
	if len(runes) <= maxURLWidth {
		return u
	}
	return string(runes[:maxURLWidth]) + "..."
}
