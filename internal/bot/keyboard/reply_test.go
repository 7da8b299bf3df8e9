package keyboard_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/storefront-bot/internal/bot/keyboard"
)

func rowTexts(t *testing.T, choices []string, nav ...string) [][]string {
	t.Helper()

	markup := keyboard.Options(choices, nav...)
	require.True(t, markup.ResizeKeyboard)

	out := make([][]string, 0, len(markup.ReplyKeyboard))
	for _, row := range markup.ReplyKeyboard {
		texts := make([]string, 0, len(row))
		for _, btn := range row {
			texts = append(texts, btn.Text)
		}
		out = append(out, texts)
	}
	return out
}

func TestOptionsLayout(t *testing.T) {
	rows := rowTexts(t, []string{"R1", "R2", "R3"}, "Back", "Restart")

	assert.Equal(t, [][]string{
		{"R1", "R2"},
		{"R3"},
		{"Back", "Restart"},
	}, rows)
}

func TestOptionsWithoutNav(t *testing.T) {
	rows := rowTexts(t, []string{"A", "B"})
	assert.Equal(t, [][]string{{"A", "B"}}, rows)
}

func TestOptionsEmptyRemovesKeyboard(t *testing.T) {
	markup := keyboard.Options(nil)
	assert.True(t, markup.RemoveKeyboard)
	assert.Empty(t, markup.ReplyKeyboard)
}

func TestSplit(t *testing.T) {
	nav := map[string]bool{"Back": true, "Restart": true}

	choices, navs := keyboard.Split([]string{"A", "Back", "B", "Restart"}, func(s string) bool { return nav[s] })

	assert.Equal(t, []string{"A", "B"}, choices)
	assert.Equal(t, []string{"Back", "Restart"}, navs)
}
