// Package tui is the interactive chat front-end over the dialog
// service.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"kbchat/internal/domain"
)

// ChatPort is the TUI-facing subset of the dialog service.
type ChatPort interface {
	Reply(ctx context.Context, userID, chatID, question string) (domain.DialogOutcome, error)
}

// Model is the Bubble Tea model for the chat application.
type Model struct {
	service    ChatPort
	users      domain.UserStore
	userID     string
	chatID     string
	input      textinput.Model
	viewport   viewport.Model
	transcript []string
	status     string
	ready      bool
}

// New creates a new chat model instance.
func New(service ChatPort, users domain.UserStore, userID, chatID string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Задайте вопрос и нажмите Enter (/version <тег> — выбрать версию)"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		service:  service,
		users:    users,
		userID:   userID,
		chatID:   chatID,
		input:    ti,
		viewport: vp,
		status:   "Готов. Введите вопрос.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, th := transcriptBoxStyle.GetFrameSize()
		_, qh := inputBoxStyle.GetFrameSize()
		reserved := 1 + 1 + qh + 1 // header, status, input box, spacer
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-th)
		m.viewport.SetContent(m.renderTranscript())
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			if q := strings.TrimSpace(m.input.Value()); q != "" {
				m = m.submit(q)
				m.input.SetValue("")
				m.viewport.SetContent(m.renderTranscript())
				m.viewport.GotoBottom()
				return m, nil
			}
		case "up":
			m.viewport.LineUp(1)
			return m, nil
		case "down":
			m.viewport.LineDown(1)
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit(text string) Model {
	if v, ok := strings.CutPrefix(text, "/version "); ok {
		v = strings.TrimSpace(v)
		if err := m.users.SetUserVersion(context.Background(), m.userID, v); err != nil {
			m.status = "Ошибка: " + err.Error()
			return m
		}
		m.status = "Версия установлена: " + v
		m.transcript = append(m.transcript, systemStyle.Render("Версия базы знаний: "+v))
		return m
	}

	m.transcript = append(m.transcript, userStyle.Render("Вы: ")+text)
	out, err := m.service.Reply(context.Background(), m.userID, m.chatID, text)
	if err != nil {
		m.status = "Ошибка: " + err.Error()
		return m
	}
	m.transcript = append(m.transcript, botStyle.Render("Бот: ")+out.Reply)
	if len(out.Citations) > 0 {
		sources := make([]string, 0, len(out.Citations))
		for _, c := range out.Citations {
			sources = append(sources, c.Source)
		}
		m.transcript = append(m.transcript, systemStyle.Render("Источники: "+strings.Join(sources, ", ")))
	}
	m.status = fmt.Sprintf("режим=%s найдено=%d top=%.2f",
		out.Mode, out.Retrieval.RetrievedCount, out.Retrieval.TopScore)
	return m
}

// View renders the chat layout.
func (m Model) View() string {
	if !m.ready {
		return "Загрузка..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Поддержка Termidesk")
	transcript := transcriptBoxStyle.Render(m.viewport.View())
	input := inputBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	return header + "\n" + transcript + "\n" + input + "\n" + status
}

func (m Model) renderTranscript() string {
	if len(m.transcript) == 0 {
		return "Сообщений пока нет."
	}
	return strings.Join(m.transcript, "\n\n")
}

var (
	transcriptBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	userStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	botStyle           = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	systemStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
