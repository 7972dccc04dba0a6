// ABOUTME: Interactive TUI wizard for connecting the RapidAPI LinkedIn source.
// ABOUTME: 4-step bubbletea model collecting API URL, profile, API key, and store size.
package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/2389-research/postsync/internal/models"
	"github.com/2389-research/postsync/internal/source"
)

// DefaultAPIURL is the default RapidAPI endpoint.
const DefaultAPIURL = source.DefaultRapidAPIURL

// MaxStoreSize bounds the number of posts the wizard accepts for the store cap.
const MaxStoreSize = 1000

// Step represents the current wizard step.
type Step int

const (
	StepAPIURL Step = iota
	StepProfile
	StepAPIKey
	StepMaxPosts
	StepValidating
	StepDone
	StepFailed
)

// validationResultMsg carries the result of an async validation attempt.
type validationResultMsg struct {
	err error
}

// ValidateFn is the function signature for connection validation.
type ValidateFn func(ctx context.Context, apiURL, apiKey, profile string) error

// cancelHolder shares a cancel function across bubbletea model copies.
// This MUST be stored as a pointer field on SetupModel so that value-receiver
// methods (required by tea.Model) can store the cancel func and have it
// visible to all copies of the model.
type cancelHolder struct {
	cancel context.CancelFunc
}

// SetupModel is the bubbletea model for the setup wizard.
type SetupModel struct {
	step          Step
	inputs        [4]textinput.Model
	spinner       spinner.Model
	validateFn    ValidateFn
	cancelCtx     *cancelHolder
	validationErr error
	inputErr      string
	quitting      bool
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	brandStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	stepStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	promptStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// NewSetupModel creates a new setup wizard model, pre-filling with existing config values.
func NewSetupModel(apiURL, profile, apiKey string) SetupModel {
	urlInput := textinput.New()
	urlInput.Placeholder = DefaultAPIURL
	urlInput.Focus()
	urlInput.Width = 50
	if apiURL != "" {
		urlInput.SetValue(apiURL)
	}

	profileInput := textinput.New()
	profileInput.Placeholder = "linkedin-username"
	profileInput.Width = 50
	if profile != "" {
		profileInput.SetValue(profile)
	}

	keyInput := textinput.New()
	keyInput.Placeholder = "your-rapidapi-key"
	keyInput.EchoMode = textinput.EchoPassword
	keyInput.Width = 50
	if apiKey != "" {
		keyInput.SetValue(apiKey)
	}

	maxInput := textinput.New()
	maxInput.Placeholder = strconv.Itoa(models.DefaultMaxPosts)
	maxInput.CharLimit = 4
	maxInput.Width = 10

	s := spinner.New()
	s.Spinner = spinner.Dot

	return SetupModel{
		step:       StepAPIURL,
		inputs:     [4]textinput.Model{urlInput, profileInput, keyInput, maxInput},
		spinner:    s,
		validateFn: ValidateConnection,
		cancelCtx:  &cancelHolder{},
	}
}

// WithMaxPosts pre-fills the store cap. Non-positive values leave the default.
func (m SetupModel) WithMaxPosts(n int) SetupModel {
	if n > 0 {
		m.inputs[3].SetValue(strconv.Itoa(n))
	}
	return m
}

// Init implements tea.Model.
func (m SetupModel) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (m SetupModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEscape:
			m.quitting = true
			if m.cancelCtx.cancel != nil {
				m.cancelCtx.cancel()
			}
			return m, tea.Quit
		}

		switch m.step {
		case StepAPIURL, StepProfile, StepAPIKey, StepMaxPosts:
			return m.updateInput(msg)
		case StepFailed:
			return m.updateFailed(msg)
		}

	case validationResultMsg:
		m.cancelCtx.cancel = nil
		if msg.err == nil {
			m.step = StepDone
			return m, tea.Quit
		}
		m.validationErr = msg.err
		m.step = StepFailed
		return m, nil

	case spinner.TickMsg:
		if m.step == StepValidating {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
	}

	return m, nil
}

func (m SetupModel) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyEnter {
		idx := int(m.step)

		// Apply default API URL if empty, and normalize trailing slashes
		if m.step == StepAPIURL {
			val := strings.TrimRight(strings.TrimSpace(m.inputs[0].Value()), "/")
			if val == "" {
				val = DefaultAPIURL
			}
			m.inputs[0].SetValue(val)
		}

		if m.step == StepProfile {
			m.inputs[1].SetValue(NormalizeProfile(m.inputs[1].Value()))
		}

		// Don't advance on empty profile or API key
		if m.step == StepProfile && m.inputs[1].Value() == "" {
			return m, nil
		}
		if m.step == StepAPIKey && m.inputs[2].Value() == "" {
			return m, nil
		}
		if m.step == StepMaxPosts {
			n, err := ParseMaxPosts(m.inputs[3].Value())
			if err != nil {
				m.inputErr = err.Error()
				return m, nil
			}
			m.inputErr = ""
			m.inputs[3].SetValue(strconv.Itoa(n))
		}

		m.inputs[idx].Blur()

		switch m.step {
		case StepAPIURL:
			m.step = StepProfile
			m.inputs[1].Focus()
			return m, textinput.Blink
		case StepProfile:
			m.step = StepAPIKey
			m.inputs[2].Focus()
			return m, textinput.Blink
		case StepAPIKey:
			m.step = StepMaxPosts
			m.inputs[3].Focus()
			return m, textinput.Blink
		case StepMaxPosts:
			m.step = StepValidating
			return m, tea.Batch(m.startValidation(), m.spinner.Tick)
		}
	}

	// Forward to the active input
	idx := int(m.step)
	var cmd tea.Cmd
	m.inputs[idx], cmd = m.inputs[idx].Update(msg)
	return m, cmd
}

func (m SetupModel) updateFailed(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyRunes {
		switch msg.Runes[0] {
		case 'r':
			m.step = StepValidating
			m.validationErr = nil
			return m, tea.Batch(m.startValidation(), m.spinner.Tick)
		case 's':
			m.step = StepDone
			return m, tea.Quit
		case 'q':
			m.quitting = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m SetupModel) startValidation() tea.Cmd {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelCtx.cancel = cancel
	apiURL := m.inputs[0].Value()
	apiKey := m.inputs[2].Value()
	profile := m.inputs[1].Value()
	fn := m.validateFn
	return func() tea.Msg {
		return validationResultMsg{err: fn(ctx, apiURL, apiKey, profile)}
	}
}

// View implements tea.Model.
func (m SetupModel) View() string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(brandStyle.Render("   POSTSYNC"))
	b.WriteString(titleStyle.Render(" - Setup"))
	b.WriteString("\n\n")
	b.WriteString("Connect the LinkedIn profile whose posts you want to sync.\n\n")

	switch m.step {
	case StepAPIURL:
		b.WriteString(stepStyle.Render("Step 1 of 4: API URL"))
		b.WriteString("\n")
		b.WriteString(promptStyle.Render("(press Enter for default)"))
		b.WriteString("\n")
		b.WriteString(m.inputs[0].View())
		b.WriteString("\n")

	case StepProfile:
		b.WriteString(fmt.Sprintf("  API URL: %s\n\n", m.inputs[0].Value()))
		b.WriteString(stepStyle.Render("Step 2 of 4: LinkedIn Profile"))
		b.WriteString("\n")
		b.WriteString(promptStyle.Render("(username or profile URL)"))
		b.WriteString("\n")
		b.WriteString(m.inputs[1].View())
		b.WriteString("\n")

	case StepAPIKey:
		b.WriteString(fmt.Sprintf("  API URL: %s\n", m.inputs[0].Value()))
		b.WriteString(fmt.Sprintf("  Profile: %s\n\n", m.inputs[1].Value()))
		b.WriteString(stepStyle.Render("Step 3 of 4: RapidAPI Key"))
		b.WriteString("\n")
		b.WriteString(m.inputs[2].View())
		b.WriteString("\n")

	case StepMaxPosts:
		b.WriteString(fmt.Sprintf("  API URL: %s\n", m.inputs[0].Value()))
		b.WriteString(fmt.Sprintf("  Profile: %s\n\n", m.inputs[1].Value()))
		b.WriteString(stepStyle.Render("Step 4 of 4: Posts to Keep"))
		b.WriteString("\n")
		b.WriteString(promptStyle.Render(fmt.Sprintf("(newest posts kept in the store, 1-%d, Enter for %d)", MaxStoreSize, models.DefaultMaxPosts)))
		b.WriteString("\n")
		b.WriteString(m.inputs[3].View())
		b.WriteString("\n")
		if m.inputErr != "" {
			b.WriteString(errorStyle.Render(m.inputErr))
			b.WriteString("\n")
		}

	case StepValidating:
		b.WriteString(fmt.Sprintf("  API URL: %s\n", m.inputs[0].Value()))
		b.WriteString(fmt.Sprintf("  Profile: %s\n", m.inputs[1].Value()))
		b.WriteString(fmt.Sprintf("  API Key: %s\n", strings.Repeat("*", len(m.inputs[2].Value()))))
		b.WriteString(fmt.Sprintf("  Keeping: %s posts\n\n", m.inputs[3].Value()))
		b.WriteString(m.spinner.View())
		b.WriteString(" Validating connection...")
		b.WriteString("\n")

	case StepDone:
		b.WriteString(successStyle.Render("✓ Connected!"))
		b.WriteString("\n")

	case StepFailed:
		errMsg := "unknown error"
		if m.validationErr != nil {
			errMsg = m.validationErr.Error()
		}
		b.WriteString(errorStyle.Render(fmt.Sprintf("✗ Validation failed: %s", errMsg)))
		b.WriteString("\n\n")
		b.WriteString(promptStyle.Render("[r]etry  [s]ave anyway  [q]uit"))
		b.WriteString("\n")
	}

	return b.String()
}

// Result returns the entered values.
func (m SetupModel) Result() (apiURL, profile, apiKey string) {
	return m.inputs[0].Value(), m.inputs[1].Value(), m.inputs[2].Value()
}

// MaxPosts returns the entered store cap, or the default when none was entered.
func (m SetupModel) MaxPosts() int {
	n, err := ParseMaxPosts(m.inputs[3].Value())
	if err != nil {
		return models.DefaultMaxPosts
	}
	return n
}

// ParseMaxPosts reads a store cap. Blank means the default.
func ParseMaxPosts(v string) (int, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return models.DefaultMaxPosts, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 || n > MaxStoreSize {
		return 0, fmt.Errorf("enter a number between 1 and %d", MaxStoreSize)
	}
	return n, nil
}

// ShouldSave returns true if the wizard completed (via validation success or
// "save anyway") and the user did not cancel with Ctrl+C, Escape, or 'q'.
func (m SetupModel) ShouldSave() bool {
	return m.step == StepDone && !m.quitting
}

// NormalizeProfile reduces a LinkedIn profile URL such as
// https://www.linkedin.com/in/jane-doe/ to its username.
func NormalizeProfile(v string) string {
	v = strings.TrimSpace(v)
	if i := strings.Index(v, "/in/"); i >= 0 {
		v = v[i+len("/in/"):]
	}
	if i := strings.IndexAny(v, "/?#"); i >= 0 {
		v = v[:i]
	}
	return strings.TrimPrefix(v, "@")
}
