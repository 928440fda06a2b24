package dialog

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"kbchat/internal/domain"
)

const systemPrompt = `Ты — бот поддержки Termidesk VDI. Отвечай только на основе предоставленного контекста и базы знаний.
Если информации недостаточно для ответа — честно скажи и задай 1–2 уточняющих вопроса (режим диагностики).
Не выдумывай решения. Если не нашёл ответ в контексте — предложи пользователю собрать логи и обратиться в поддержку.
Отвечай кратко и по делу.`

const timeoutReply = "Генерация ответа заняла слишком много времени. " +
	"Попробуйте повторить вопрос чуть позже или сформулируйте его короче."

var diagnosticQuestions = []string{
	"На каком шаге возникает проблема и что вы видите на экране?",
	"Какой точный текст ошибки отображается, если он есть?",
	"Воспроизводится ли проблема после перезапуска клиента?",
}

// needVersionReply asks the user to pick a knowledge-base version
// before any retrieval happens.
func needVersionReply(versions []string) string {
	var b strings.Builder
	b.WriteString("Пожалуйста, укажите вашу версию Termidesk — без неё я не знаю, в какой базе знаний искать.\n\nДоступные версии:\n")
	for _, v := range versions {
		fmt.Fprintf(&b, "- %s\n", v)
	}
	b.WriteString("\nУкажите версию и повторите вопрос.")
	return b.String()
}

// diagnosticReply is the templated no-answer reply: up to maxQuestions
// clarifying questions plus a request to collect logs.
func diagnosticReply(maxQuestions int) string {
	qs := diagnosticQuestions
	if maxQuestions > 0 && maxQuestions < len(qs) {
		qs = qs[:maxQuestions]
	}
	var b strings.Builder
	b.WriteString("Я не нашёл в базе знаний достаточно информации, чтобы ответить уверенно.\n\nДавайте уточним:\n")
	for _, q := range qs {
		fmt.Fprintf(&b, "- %s\n", q)
	}
	b.WriteString("\nЕсли проблема повторяется, соберите логи клиента и сервера и обратитесь в поддержку.")
	return b.String()
}

// buildContext renders the assembled bundle as numbered source blocks.
func buildContext(bundle *domain.ContextBundle) string {
	if bundle == nil || len(bundle.Candidates) == 0 {
		return "(Релевантных фрагментов в базе знаний не найдено.)"
	}
	parts := make([]string, 0, len(bundle.Candidates))
	for i, c := range bundle.Candidates {
		parts = append(parts, fmt.Sprintf("[Источник %d: %s]\n%s", i+1, c.Chunk.DocumentTitle, c.Chunk.Text))
	}
	return strings.Join(parts, "\n\n---\n\n")
}

func buildHistory(turns []domain.Turn) string {
	if len(turns) == 0 {
		return ""
	}
	parts := make([]string, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case domain.RoleUser:
			parts = append(parts, "Пользователь: "+t.Text)
		case domain.RoleAssistant:
			parts = append(parts, "Ассистент: "+t.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// buildPrompt assembles the full generation prompt: system
// instructions, knowledge-base context, dialog history and the current
// question.
func buildPrompt(question string, bundle *domain.ContextBundle, history []domain.Turn) string {
	parts := []string{
		systemPrompt,
		"",
		"Контекст из базы знаний Termidesk:",
		buildContext(bundle),
		"",
	}
	if h := buildHistory(history); h != "" {
		parts = append(parts, "История диалога:", h, "")
	}
	parts = append(parts, "Текущий вопрос пользователя:", question, "", "Ответ:")
	return strings.Join(parts, "\n")
}

func snippet(text string, maxRunes int) string {
	if utf8.RuneCountInString(text) <= maxRunes {
		return text
	}
	return string([]rune(text)[:maxRunes])
}
