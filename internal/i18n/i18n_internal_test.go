package i18n

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLocalizer(t *testing.T) {
	t.Parallel()
	localizer, err := NewLocalizer()
	require.NoError(t, err)
	require.NotNil(t, localizer)

	for _, lang := range Languages {
		assert.NotEmpty(t, localizer.translations[lang], "translations for %s not loaded", lang)
	}
}

func TestGet(t *testing.T) {
	t.Parallel()
	localizer, err := NewLocalizer()
	require.NoError(t, err)

	tests := []struct {
		name     string
		lang     string
		key      string
		expected string
	}{
		{
			name:     "English message",
			lang:     "en",
			key:      "language.select",
			expected: "Choose your language:",
		},
		{
			name:     "German message",
			lang:     "de",
			key:      "language.select",
			expected: "Wähle deine Sprache:",
		},
		{
			name:     "Fallback to English for unknown language",
			lang:     "fr",
			key:      "language.select",
			expected: "Choose your language:",
		},
		{
			name:     "Fallback to English for key missing in German",
			lang:     "de",
			key:      "unknown.command",
			expected: "I did not understand that. Send /help to see what I can do.",
		},
		{
			name:     "Missing key returns the key",
			lang:     "en",
			key:      "does.not.exist",
			expected: "does.not.exist",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, localizer.Get(tt.lang, tt.key))
		})
	}
}

func TestGetWithData(t *testing.T) {
	t.Parallel()
	localizer, err := NewLocalizer()
	require.NoError(t, err)

	got := localizer.GetWithData("en", "login.code", map[string]any{"code": "482913", "minutes": 5})
	assert.Equal(t,
		"🔐 Your portal login code: 482913\nIt expires in 5 minutes. Do not share it with anyone.", got)

	got = localizer.GetWithData("de", "welcome", map[string]any{"name": "Maria"})
	assert.Contains(t, got, "Hallo, Maria!")

	got = localizer.GetWithData("en", "language.select", map[string]any{"unused": 1})
	assert.Equal(t, "Choose your language:", got)
}

func TestNormalizeLanguageCode(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"":      "en",
		"d":     "en",
		"de":    "de",
		"de-AT": "de",
		"DE":    "de",
		"en-US": "en",
		"uk":    "en",
	}

	for input, expected := range tests {
		assert.Equal(t, expected, NormalizeLanguageCode(input), "input %q", input)
	}
}

func TestLocalesHaveEnglishKeys(t *testing.T) {
	t.Parallel()
	data, err := localesFS.ReadFile("locales/en.json")
	require.NoError(t, err)

	var english map[string]string
	require.NoError(t, json.Unmarshal(data, &english))

	localizer, err := NewLocalizer()
	require.NoError(t, err)
	for lang, translations := range localizer.translations {
		for key := range translations {
			assert.Contains(t, english, key, "key %q of %s is missing in English", key, lang)
		}
	}
}
