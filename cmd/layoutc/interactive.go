package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/capnp-layout/codec"
	"github.com/wippyai/capnp-layout/layout"
	"github.com/wippyai/capnp-layout/schema"
	"github.com/wippyai/capnp-layout/witbridge"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	nameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	sizeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type modelState int

const (
	stateSelectStruct modelState = iota
	stateShowLayout
	stateInputValue
	stateShowResult
)

type interactiveModel struct {
	err      error
	planner  *layout.Planner
	filename string
	result   string
	structs  []*layout.Struct
	view     viewport.Model
	input    textinput.Model
	selected int
	state    modelState
}

func newInteractiveModel(filename string) *interactiveModel {
	return &interactiveModel{
		filename: filename,
		state:    stateSelectStruct,
		view:     viewport.New(80, 20),
	}
}

type loadedMsg struct {
	err     error
	planner *layout.Planner
	structs []*layout.Struct
}

type encodedMsg struct {
	err    error
	result string
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.loadSchema
}

func (m *interactiveModel) loadSchema() tea.Msg {
	file, err := loadSchema(m.filename)
	if err != nil {
		return loadedMsg{err: err}
	}
	planner := codec.NewPlanner(file, layout.Options{})
	structs, err := planner.PlanAll()
	if len(structs) == 0 && err == nil {
		err = fmt.Errorf("%s declares no structs", m.filename)
	}
	return loadedMsg{planner: planner, structs: structs, err: err}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.view.Width = msg.Width
		m.view.Height = max(msg.Height-6, 3)

	case tea.KeyMsg:
		if m.state == stateInputValue {
			switch msg.String() {
			case "ctrl+c":
				return m, tea.Quit
			case "esc":
				m.state = stateShowLayout
				return m, nil
			case "enter":
				return m, m.encodeInput
			}
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			return m, cmd
		}

		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit

		case "up", "k":
			if m.state == stateSelectStruct && m.selected > 0 {
				m.selected--
				return m, nil
			}

		case "down", "j":
			if m.state == stateSelectStruct && m.selected < len(m.structs)-1 {
				m.selected++
				return m, nil
			}

		case "enter":
			switch m.state {
			case stateSelectStruct:
				if len(m.structs) > 0 {
					m.showLayout()
				}
			case stateShowResult:
				m.state = stateShowLayout
				m.err = nil
			}
			return m, nil

		case "e":
			if m.state == stateShowLayout {
				m.prepareInput()
				return m, textinput.Blink
			}

		case "esc":
			switch m.state {
			case stateShowLayout:
				m.state = stateSelectStruct
			case stateShowResult:
				m.state = stateShowLayout
				m.err = nil
			}
			return m, nil
		}

	case loadedMsg:
		m.err = msg.err
		m.planner = msg.planner
		m.structs = msg.structs

	case encodedMsg:
		m.err = msg.err
		m.result = msg.result
		m.state = stateShowResult
		return m, nil
	}

	if m.state == stateShowLayout {
		var cmd tea.Cmd
		m.view, cmd = m.view.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *interactiveModel) showLayout() {
	st := m.structs[m.selected]
	var b strings.Builder
	if err := layout.Dump(&b, st); err != nil {
		b.WriteString(errorStyle.Render(err.Error()))
	}
	if info, err := witbridge.SizeOf(witbridge.NewProjector(m.planner), st); err == nil {
		b.WriteString(sizeStyle.Render(fmt.Sprintf("WIT record: size %d, align %d", info.Size, info.Align)))
		b.WriteString("\n")
	}
	m.view.SetContent(b.String())
	m.view.GotoTop()
	m.state = stateShowLayout
}

func (m *interactiveModel) prepareInput() {
	ti := textinput.New()
	ti.Placeholder = `{"struct": {"field": {"int": 1}}}`
	ti.Prompt = "value: "
	ti.Width = 60
	ti.Focus()
	m.input = ti
	m.state = stateInputValue
}

func (m *interactiveModel) encodeInput() tea.Msg {
	st := m.structs[m.selected]
	v, err := schema.ParseValue([]byte(m.input.Value()))
	if err != nil {
		return encodedMsg{err: err}
	}
	sv, ok := v.(schema.Struct)
	if !ok {
		return encodedMsg{err: fmt.Errorf("value must be a struct literal")}
	}
	msg, err := codec.NewEncoder(m.planner, codec.Options{}).Encode(st, sv)
	if err != nil {
		return encodedMsg{err: err}
	}
	back, err := codec.NewDecoder(m.planner, codec.Options{}).Decode(st, msg)
	if err != nil {
		return encodedMsg{err: err}
	}
	return encodedMsg{result: hex.Dump(msg) + "\n" + schema.Format(back)}
}

func (m *interactiveModel) View() string {
	if m.err != nil && m.state != stateShowResult {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}

	if m.planner == nil {
		return "Loading schema..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("Layout Explorer"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectStruct:
		b.WriteString("Select a struct:\n\n")
		for i, st := range m.structs {
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + st.Name))
			} else {
				b.WriteString("  " + st.Name)
			}
			b.WriteString(" ")
			b.WriteString(sizeStyle.Render(fmt.Sprintf("(%dw + %dp)", st.DataWords, st.PointerCount)))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter show layout • q quit"))

	case stateShowLayout:
		b.WriteString(m.view.View())
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ scroll • e encode a value • esc back • q quit"))

	case stateInputValue:
		st := m.structs[m.selected]
		b.WriteString(fmt.Sprintf("Encoding %s\n\n", nameStyle.Render(st.Name)))
		b.WriteString(m.input.View())
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter encode • esc back"))

	case stateShowResult:
		st := m.structs[m.selected]
		b.WriteString(fmt.Sprintf("Encoded %s:\n\n", nameStyle.Render(st.Name)))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func runInteractive(filename string) error {
	p := tea.NewProgram(newInteractiveModel(filename), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
