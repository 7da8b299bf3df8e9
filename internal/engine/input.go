package engine

import "strings"

// Command is a reserved input recognised regardless of the current step.
type Command string

const (
	CmdNone    Command = ""
	CmdBack    Command = "back"
	CmdRestart Command = "restart"
	CmdConfirm Command = "confirm"
	CmdCancel  Command = "cancel"
	CmdYes     Command = "yes"
	CmdNo      Command = "no"
	CmdSkip    Command = "skip"
)

// Button labels shown on keyboards for reserved inputs.
const (
	LabelBack    = "⬅️ Назад"
	LabelRestart = "🔄 Заново"
	LabelConfirm = "✅ Подтвердить"
	LabelCancel  = "❌ Отмена"
	LabelYes     = "Да"
	LabelNo      = "Нет"
	LabelSkip    = "Пропустить"
)

var reserved = func() map[string]Command {
	aliases := map[Command][]string{
		CmdBack:    {"back", "назад", LabelBack},
		CmdRestart: {"restart", "/start", "/restart", "заново", LabelRestart},
		CmdConfirm: {"confirm", "подтвердить", LabelConfirm},
		CmdCancel:  {"cancel", "/cancel", "отмена", LabelCancel},
		CmdYes:     {"yes", "да"},
		CmdNo:      {"no", "нет"},
		CmdSkip:    {"skip", "пропустить"},
	}

	m := make(map[string]Command)
	for cmd, words := range aliases {
		for _, w := range words {
			m[strings.ToLower(w)] = cmd
		}
	}
	return m
}()

// ParseCommand maps text to a reserved command, case-insensitively.
func ParseCommand(text string) Command {
	return reserved[strings.ToLower(strings.TrimSpace(text))]
}

// QuantityToken extracts the tier token: the first whitespace-delimited word
// of the text before any parenthesis, so "1pc (50$)" yields "1pc".
func QuantityToken(text string) string {
	if i := strings.IndexByte(text, '('); i >= 0 {
		text = text[:i]
	}
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// IsNavigation reports whether label is a navigation button rather than a choice.
func IsNavigation(label string) bool {
	switch label {
	case LabelBack, LabelRestart, LabelCancel:
		return true
	}
	return false
}
