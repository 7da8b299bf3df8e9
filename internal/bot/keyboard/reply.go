// Package keyboard renders workflow options as Telegram reply keyboards.
package keyboard

import (
	telebot "gopkg.in/telebot.v3"
)

// DefaultColumns is how many option buttons share a row.
const DefaultColumns = 2

// Options lays out choices as a resized reply keyboard. Choices listed in nav
// go on a final row of their own. With no choices at all the keyboard is removed.
func Options(choices []string, nav ...string) *telebot.ReplyMarkup {
	if len(choices) == 0 && len(nav) == 0 {
		return &telebot.ReplyMarkup{RemoveKeyboard: true}
	}

	markup := &telebot.ReplyMarkup{
		ResizeKeyboard:  true,
		OneTimeKeyboard: false,
	}

	var rows []telebot.Row
	for start := 0; start < len(choices); start += DefaultColumns {
		end := min(start+DefaultColumns, len(choices))

		row := make(telebot.Row, 0, end-start)
		for _, label := range choices[start:end] {
			row = append(row, markup.Text(label))
		}
		rows = append(rows, row)
	}

	if len(nav) > 0 {
		row := make(telebot.Row, 0, len(nav))
		for _, label := range nav {
			row = append(row, markup.Text(label))
		}
		rows = append(rows, row)
	}

	markup.Reply(rows...)
	return markup
}

// Split separates navigation labels from ordinary choices, preserving order.
func Split(options []string, isNav func(string) bool) (choices, nav []string) {
	for _, o := range options {
		if isNav != nil && isNav(o) {
			nav = append(nav, o)
			continue
		}
		choices = append(choices, o)
	}
	return choices, nav
}
