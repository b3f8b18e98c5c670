// Package menu is the interactive entry point shown when the binary is
// started without a subcommand. It only collects a Selection; the cmd
// layer dispatches it so interactive and headless runs share one path.
package menu

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"skbench/internal/driver"
)

type Action int

const (
	ActionNone Action = iota
	ActionRun
	ActionOversold
	ActionDuplicateSingle
	ActionDuplicateMulti
	ActionIdempotencySingle
	ActionIdempotencyConcurrent
	ActionRegister
	ActionCreateActivity
	ActionListActivities
	ActionHistory
	ActionQuit
)

// Selection is what the user picked; zero value means "do nothing".
type Selection struct {
	Action      Action
	Profile     string
	Custom      *driver.Profile
	Concurrency int
	Count       int
	Stock       int64
}

var (
	titleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4")).Bold(true)
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")).Bold(true)
	subtleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#767676"))
	boxStyle      = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#3C3C3C")).
			Padding(1, 2)
)

type item struct {
	label  string
	action Action
	// preset is the profile name for load test items; "custom" opens the
	// parameter form instead.
	preset string
	// form lists the parameter fields to collect before finishing.
	form []fieldSpec
}

type fieldSpec struct {
	label       string
	placeholder string
}

type field struct {
	spec  fieldSpec
	input textinput.Model
}

const (
	statePick = iota
	stateForm
)

type model struct {
	items  []item
	cursor int

	state  int
	fields []field
	focus  int
	picked item

	sel Selection
}

func buildItems() []item {
	items := make([]item, 0, 12)
	for _, name := range driver.PresetNames() {
		p := driver.Presets()[name]
		items = append(items, item{
			label: fmt.Sprintf("Load test: %-9s (%d workers, %d users, %s)",
				name, p.ConcurrentUsers, p.TotalUsers, p.Duration),
			action: ActionRun,
			preset: name,
		})
	}
	customForm := []fieldSpec{
		{"Concurrent workers", "50"},
		{"Total users", "200"},
		{"Duration (seconds)", "120"},
		{"Delay (ms)", "200"},
		{"Jitter (ms)", "300"},
	}
	concurrencyForm := []fieldSpec{{"Concurrency", "50"}}

	items = append(items,
		item{label: "Load test: custom parameters", action: ActionRun, preset: "custom", form: customForm},
		item{label: "Verify: oversold protection", action: ActionOversold, form: concurrencyForm},
		item{label: "Verify: duplicate purchase (single user)", action: ActionDuplicateSingle},
		item{label: "Verify: duplicate purchase (many users)", action: ActionDuplicateMulti},
		item{label: "Verify: idempotency (sequential)", action: ActionIdempotencySingle},
		item{label: "Verify: idempotency (concurrent)", action: ActionIdempotencyConcurrent, form: concurrencyForm},
		item{label: "Register test users", action: ActionRegister, form: []fieldSpec{{"Count", "10"}}},
		item{label: "Create activity", action: ActionCreateActivity, form: []fieldSpec{{"Total stock", "1000"}}},
		item{label: "List activities", action: ActionListActivities},
		item{label: "Run history", action: ActionHistory},
		item{label: "Quit", action: ActionQuit},
	)
	return items
}

func newModel() model {
	return model{items: buildItems()}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	if m.state == stateForm {
		return m.updateForm(key)
	}

	switch key.String() {
	case "ctrl+c", "q":
		m.sel = Selection{Action: ActionQuit}
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.items)-1 {
			m.cursor++
		}
	case "enter":
		it := m.items[m.cursor]
		if len(it.form) == 0 {
			m.sel = Selection{Action: it.action, Profile: it.preset}
			return m, tea.Quit
		}
		m.picked = it
		m.fields = make([]field, len(it.form))
		for i, spec := range it.form {
			in := textinput.New()
			in.Placeholder = spec.placeholder
			in.Width = 12
			if i == 0 {
				in.Focus()
			}
			m.fields[i] = field{spec: spec, input: in}
		}
		m.focus = 0
		m.state = stateForm
		return m, textinput.Blink
	}
	return m, nil
}

func (m model) updateForm(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "ctrl+c":
		m.sel = Selection{Action: ActionQuit}
		return m, tea.Quit
	case "esc":
		m.state = statePick
		return m, nil
	case "enter":
		if m.focus == len(m.fields)-1 {
			m.sel = m.finishForm()
			return m, tea.Quit
		}
		m.focus++
		m.syncFocus()
		return m, nil
	case "tab", "down":
		m.focus = (m.focus + 1) % len(m.fields)
		m.syncFocus()
		return m, nil
	case "shift+tab", "up":
		m.focus--
		if m.focus < 0 {
			m.focus = len(m.fields) - 1
		}
		m.syncFocus()
		return m, nil
	}

	var cmd tea.Cmd
	m.fields[m.focus].input, cmd = m.fields[m.focus].input.Update(key)
	return m, cmd
}

func (m *model) syncFocus() {
	for i := range m.fields {
		if i == m.focus {
			m.fields[i].input.Focus()
		} else {
			m.fields[i].input.Blur()
		}
	}
}

// finishForm parses the collected fields; blank fields fall back to the
// placeholder default.
func (m model) finishForm() Selection {
	num := func(i int) int {
		v := strings.TrimSpace(m.fields[i].input.Value())
		if v == "" {
			v = m.fields[i].spec.placeholder
		}
		n, _ := strconv.Atoi(v)
		return n
	}

	sel := Selection{Action: m.picked.action, Profile: m.picked.preset}
	switch {
	case m.picked.preset == "custom":
		sel.Custom = &driver.Profile{
			Name:            "custom",
			ConcurrentUsers: num(0),
			TotalUsers:      num(1),
			Duration:        time.Duration(num(2)) * time.Second,
			Delay:           time.Duration(num(3)) * time.Millisecond,
			Jitter:          time.Duration(num(4)) * time.Millisecond,
		}
	case m.picked.action == ActionRegister:
		sel.Count = num(0)
	case m.picked.action == ActionCreateActivity:
		sel.Stock = int64(num(0))
	default:
		sel.Concurrency = num(0)
	}
	return sel
}

func (m model) View() string {
	if m.state == stateForm {
		return m.viewForm()
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Seckill benchmark"))
	b.WriteString("\n\n")
	for i, it := range m.items {
		if i == m.cursor {
			b.WriteString(selectedStyle.Render("> " + it.label))
		} else {
			b.WriteString("  " + it.label)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(subtleStyle.Render("up/down move, enter select, q quit"))
	return boxStyle.Render(b.String())
}

func (m model) viewForm() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.picked.label))
	b.WriteString("\n\n")
	for i := range m.fields {
		b.WriteString(subtleStyle.Render(m.fields[i].spec.label))
		b.WriteString("\n")
		b.WriteString(m.fields[i].input.View())
		b.WriteString("\n\n")
	}
	b.WriteString(subtleStyle.Render("enter on last field starts, esc back"))
	return boxStyle.Render(b.String())
}

// Run shows the menu and blocks until the user makes a selection.
func Run() (Selection, error) {
	p := tea.NewProgram(newModel(), tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return Selection{}, err
	}
	return final.(model).sel, nil
}
