package i18n

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

//go:embed locales/*.json
var localesFS embed.FS

// DefaultLanguage is used when a key or a language is missing.
const DefaultLanguage = "en"

// Languages lists the supported language codes.
var Languages = []string{"en", "de"}

// Localizer handles translation of the bot messages.
type Localizer struct {
	translations map[string]map[string]string
	mu           sync.RWMutex
}

// NewLocalizer creates a new Localizer instance and loads all translations.
func NewLocalizer() (*Localizer, error) {
	locale := &Localizer{
		translations: make(map[string]map[string]string),
	}

	for _, lang := range Languages {
		if err := locale.loadLanguage(lang); err != nil {
			return nil, fmt.Errorf("failed to load language %s: %w", lang, err)
		}
	}

	return locale, nil
}

// loadLanguage loads translations for a specific language from embedded JSON files.
func (l *Localizer) loadLanguage(lang string) error {
	filename := fmt.Sprintf("locales/%s.json", lang)
	data, err := localesFS.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read locale file %s: %w", filename, err)
	}

	var translations map[string]string
	if err = json.Unmarshal(data, &translations); err != nil {
		return fmt.Errorf("failed to unmarshal locale file %s: %w", filename, err)
	}

	l.mu.Lock()
	l.translations[lang] = translations
	l.mu.Unlock()

	return nil
}

// Get returns the translation for the given key in the specified language.
// Missing keys fall back to English and then to the key itself.
func (l *Localizer) Get(lang, key string) string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if langTranslations, ok := l.translations[lang]; ok {
		if translation, exists := langTranslations[key]; exists {
			return translation
		}
	}

	if lang != DefaultLanguage {
		if translation, exists := l.translations[DefaultLanguage][key]; exists {
			return translation
		}
	}

	return key
}

// GetWithData returns the translation with every {placeholder} replaced.
// Example: GetWithData("en", "login.code", map[string]any{"code": "482913"}).
func (l *Localizer) GetWithData(lang, key string, data map[string]any) string {
	translation := l.Get(lang, key)

	for k, v := range data {
		translation = strings.ReplaceAll(translation, "{"+k+"}", fmt.Sprint(v))
	}

	return translation
}

// NormalizeLanguageCode maps Telegram language codes such as "de-AT" to a supported language.
func NormalizeLanguageCode(telegramLang string) string {
	const langCodeShortLength = 2
	if len(telegramLang) < langCodeShortLength {
		return DefaultLanguage
	}

	switch strings.ToLower(telegramLang[:langCodeShortLength]) {
	case "de":
		return "de"
	default:
		return DefaultLanguage
	}
}
