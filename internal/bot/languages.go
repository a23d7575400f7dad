package bot

import "sync"

// LanguageStore keeps the language each user picked with /language.
// Users without an entry get the language of their Telegram client.
type LanguageStore struct {
	mu    sync.RWMutex
	langs map[int64]string
}

func NewLanguageStore() *LanguageStore {
	return &LanguageStore{langs: make(map[int64]string)}
}

// Set sets the language for the user.
func (s *LanguageStore) Set(userID int64, lang string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.langs[userID] = lang
}

// Get returns the language picked by the user, if any.
func (s *LanguageStore) Get(userID int64) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lang, ok := s.langs[userID]
	return lang, ok
}
