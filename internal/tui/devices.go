// SPDX-License-Identifier: MIT
//
// Package tui implements the "list" command's interactive device picker,
// grounded on the teacher's internal/tui device list screen.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"beatlight/internal/capture"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Bold(true)
)

// DeviceListModel is the Bubble Tea model backing the "list" command: a
// scrollable list of capture devices with the cursor row highlighted.
type DeviceListModel struct {
	devices       []capture.Device
	selectedIndex int
	viewport      viewport.Model
	ready         bool
	err           error
}

func (m DeviceListModel) Init() tea.Cmd {
	return fetchDevices
}

type devicesMsg struct {
	devices []capture.Device
}

type errMsg struct {
	err error
}

func fetchDevices() tea.Msg {
	devices, err := capture.ListDevices()
	if err != nil {
		return errMsg{err}
	}
	return devicesMsg{devices}
}

func (m DeviceListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-4)
			m.viewport.Style = lipgloss.NewStyle()
			m.ready = true
			if len(m.devices) > 0 {
				m.viewport.SetContent(m.renderDevices())
			}
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 4
		}

	case devicesMsg:
		m.devices = msg.devices
		if m.ready {
			m.viewport.SetContent(m.renderDevices())
		}

	case errMsg:
		m.err = msg.err

	case tea.KeyMsg:
		if key.Matches(msg, key.NewBinding(key.WithKeys("q", "ctrl+c"))) {
			return m, tea.Quit
		}
		switch {
		case key.Matches(msg, key.NewBinding(key.WithKeys("up", "k"))):
			if m.selectedIndex > 0 {
				m.selectedIndex--
				m.viewport.SetContent(m.renderDevices())
			}
		case key.Matches(msg, key.NewBinding(key.WithKeys("down", "j"))):
			if m.selectedIndex < len(m.devices)-1 {
				m.selectedIndex++
				m.viewport.SetContent(m.renderDevices())
			}
		}
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m DeviceListModel) View() string {
	if !m.ready {
		return "Initializing..."
	}
	if m.err != nil {
		return fmt.Sprintf("Error: %v\n\nPress q to exit.", m.err)
	}

	title := titleStyle.Render("Capture Devices")
	help := infoStyle.Render("↑/↓: Navigate • q: Quit")
	return fmt.Sprintf("%s\n\n%s\n\n%s", title, m.viewport.View(), help)
}

// renderDevices formats the device list, marking which devices can serve as
// an input (--device substring match requires MaxInputChannels > 0).
func (m DeviceListModel) renderDevices() string {
	var sb strings.Builder

	if len(m.devices) == 0 {
		return "No capture devices found."
	}

	for i, device := range m.devices {
		kind := "output only"
		if device.MaxInputChannels > 0 {
			kind = "input"
		}

		line := fmt.Sprintf("[%d] %s (%s)\n", device.ID, device.Name, kind)
		line += fmt.Sprintf("    Input channels: %d, default sample rate: %.0f Hz\n",
			device.MaxInputChannels, device.DefaultSampleRate)

		if i == m.selectedIndex {
			line = highlightStyle.Render(line)
		}

		sb.WriteString(line)
		sb.WriteString("\n")
	}

	return sb.String()
}

// NewDeviceListModel creates a new device list model.
func NewDeviceListModel() DeviceListModel {
	return DeviceListModel{selectedIndex: 0}
}

// StartDeviceListUI launches the Bubble Tea TUI for the "list" command.
func StartDeviceListUI() error {
	p := tea.NewProgram(
		NewDeviceListModel(),
		tea.WithAltScreen(),
	)
	_, err := p.Run()
	return err
}
