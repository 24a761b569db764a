package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"barsim/internal/chart"
	"barsim/internal/live"
)

// Messages.
type pointMsg chart.Point
type syncErrMsg struct{ err error }

type model struct {
	addr          string
	board         *board
	viewport      viewport.Model
	ready         bool
	width, height int
	syncCancel    context.CancelFunc
	err           error
}

func initialModel(addr string, cancel context.CancelFunc) model {
	return model{addr: addr, board: newBoard(), syncCancel: cancel}
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.syncCancel()
			return m, tea.Quit
		case "home":
			m.viewport.GotoTop()
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		vpHeight := m.height - 2
		if vpHeight < 1 {
			vpHeight = 1
		}
		if !m.ready {
			m.viewport = viewport.New(m.width, vpHeight)
			m.viewport.MouseWheelEnabled = true
			m.ready = true
		} else {
			m.viewport.Width = m.width
			m.viewport.Height = vpHeight
		}
		m.viewport.SetContent(m.board.render())
		return m, nil

	case pointMsg:
		m.board.add(chart.Point(msg))
		if m.ready {
			m.viewport.SetContent(m.board.render())
		}
		return m, nil

	case syncErrMsg:
		m.err = msg.err
		return m, tea.Quit
	}

	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m model) View() string {
	if !m.ready {
		return "Connecting..."
	}
	footer := dimStyle.Render(" q quit  ↑/↓ scroll  home top")
	return m.board.header(m.addr) + "\n" + m.viewport.View() + "\n" + footer
}

func main() {
	symbol := flag.String("symbol", "", "only show this symbol")
	timeframe := flag.String("timeframe", "", "only show this timeframe (1Min, 5Min, 15Min)")
	flag.Parse()

	addr := "localhost:50051"
	if a := os.Getenv("BARSIM_FEED_ADDR"); a != "" {
		addr = a
	}

	// The TUI owns stdout, so log to a file.
	logFile, err := os.Create(filepath.Join(os.TempDir(), "barsim-watch.log"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()
	logger := slog.New(slog.NewTextHandler(logFile, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := tea.NewProgram(
		initialModel(addr, cancel),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	client := live.NewClient(addr, logger)
	go func() {
		err := client.Sync(ctx, live.Filter{Symbol: *symbol, Timeframe: *timeframe}, func(pt chart.Point) {
			p.Send(pointMsg(pt))
		})
		if err != nil && ctx.Err() == nil {
			logger.Error("sync error", "error", err)
			p.Send(syncErrMsg{err: err})
		}
	}()

	final, err := p.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if m, ok := final.(model); ok && m.err != nil {
		fmt.Fprintf(os.Stderr, "sync error: %v\n", m.err)
		os.Exit(1)
	}
}
