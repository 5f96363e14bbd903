// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aegis-dev/aegis/pkg/health"
)

const monitorPollInterval = 2 * time.Second

// --- lipgloss styles ---

var (
	monTitleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	monHeaderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	monOKStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	monWarnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	monErrStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	monDimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	monBoxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("62")).Padding(0, 1)
)

// --- bubbletea messages ---

type pollResultMsg struct {
	providers []health.Snapshot
	breakers  []health.BreakerSnapshot
}

type pollErrMsg struct{ err error }

type pollTickMsg struct{}

// monitorModel is the bubbletea model for the live dashboard.
type monitorModel struct {
	client    *daemonClient
	addr      string
	spinner   spinner.Model
	providers []health.Snapshot
	breakers  map[string]health.BreakerSnapshot
	pollErr   string
	updated   time.Time
	loaded    bool
}

func newMonitorModel(addr string) monitorModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return monitorModel{
		client:   newDaemonClient(addr),
		addr:     addr,
		spinner:  sp,
		breakers: map[string]health.BreakerSnapshot{},
	}
}

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, pollCmd(m.client))
}

func pollCmd(client *daemonClient) tea.Cmd {
	return func() tea.Msg {
		var provBody struct {
			Providers []health.Snapshot `json:"providers"`
		}
		if err := client.getJSON("/api/v1/providers", &provBody); err != nil {
			return pollErrMsg{err: err}
		}
		var brBody struct {
			Breakers []health.BreakerSnapshot `json:"breakers"`
		}
		if err := client.getJSON("/api/v1/breakers", &brBody); err != nil {
			return pollErrMsg{err: err}
		}
		return pollResultMsg{providers: provBody.Providers, breakers: brBody.Breakers}
	}
}

func schedulePoll() tea.Cmd {
	return tea.Tick(monitorPollInterval, func(time.Time) tea.Msg {
		return pollTickMsg{}
	})
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, pollCmd(m.client)
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case pollTickMsg:
		return m, pollCmd(m.client)

	case pollResultMsg:
		m.providers = msg.providers
		m.breakers = make(map[string]health.BreakerSnapshot, len(msg.breakers))
		for _, b := range msg.breakers {
			m.breakers[b.Provider] = b
		}
		sort.Slice(m.providers, func(i, j int) bool {
			return m.providers[i].Provider < m.providers[j].Provider
		})
		m.pollErr = ""
		m.updated = time.Now()
		m.loaded = true
		return m, schedulePoll()

	case pollErrMsg:
		m.pollErr = msg.err.Error()
		return m, schedulePoll()
	}

	return m, nil
}

func (m monitorModel) View() string {
	var b strings.Builder

	b.WriteString(monTitleStyle.Render("aegis monitor") + monDimStyle.Render("  "+m.addr) + "\n\n")

	if !m.loaded && m.pollErr == "" {
		b.WriteString(m.spinner.View() + " connecting...\n")
		return b.String()
	}

	if m.pollErr != "" {
		b.WriteString(monErrStyle.Render("poll failed: "+m.pollErr) + "\n\n")
	}

	var rows strings.Builder
	rows.WriteString(monHeaderStyle.Render(fmt.Sprintf("%-14s %-12s %-7s %-10s %s",
		"PROVIDER", "STATUS", "SCORE", "CIRCUIT", "LAST ERROR")) + "\n")

	for _, p := range m.providers {
		status := monOKStyle.Render(fmt.Sprintf("%-12s", "available"))
		if !p.Available {
			status = monErrStyle.Render(fmt.Sprintf("%-12s", "unavailable"))
		}

		circuit := "closed"
		if br, ok := m.breakers[p.Provider]; ok {
			circuit = br.State
		}
		circuitCell := fmt.Sprintf("%-10s", circuit)
		switch circuit {
		case "open":
			circuitCell = monErrStyle.Render(circuitCell)
		case "half-open":
			circuitCell = monWarnStyle.Render(circuitCell)
		default:
			circuitCell = monOKStyle.Render(circuitCell)
		}

		lastErr := p.LastError
		if len(lastErr) > 40 {
			lastErr = lastErr[:37] + "..."
		}

		rows.WriteString(fmt.Sprintf("%-14s %s %-7.2f %s %s\n",
			p.Provider, status, p.Score, circuitCell, monDimStyle.Render(lastErr)))
	}

	b.WriteString(monBoxStyle.Render(strings.TrimRight(rows.String(), "\n")) + "\n\n")

	if !m.updated.IsZero() {
		b.WriteString(monDimStyle.Render(fmt.Sprintf("updated %s  ", m.updated.Format("15:04:05"))))
	}
	b.WriteString(monDimStyle.Render("r refresh • q quit") + "\n")
	return b.String()
}

func newMonitorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Live provider health dashboard",
		Long:  "Poll the running daemon and render provider health, scores, and circuit states in a live terminal dashboard.",
		RunE:  runMonitor,
	}

	cmd.Flags().String("address", "", "daemon address to watch (defaults to server.listen)")

	return cmd
}

func runMonitor(cmd *cobra.Command, _ []string) error {
	addr, _ := cmd.Flags().GetString("address")
	if addr == "" {
		addr = viper.GetString("server.listen")
	}

	p := tea.NewProgram(newMonitorModel(addr), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
