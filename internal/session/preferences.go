package session

import (
	"context"
	"errors"
)

type Preferences struct {
	Theme    string `json:"theme"`
	Language string `json:"language"`
}

func (s *Session) Preferences(ctx context.Context) (Preferences, error) {
	theme, terr := s.store.Get(ctx, KeyTheme)
	lang, lerr := s.store.Get(ctx, KeyLanguage)
	return Preferences{Theme: theme, Language: lang}, errors.Join(terr, lerr)
}

// SetPreferences stores the non-empty fields of p.
func (s *Session) SetPreferences(ctx context.Context, p Preferences) error {
	var errs []error
	if p.Theme != "" {
		errs = append(errs, s.store.Set(ctx, KeyTheme, p.Theme))
	}
	if p.Language != "" {
		errs = append(errs, s.store.Set(ctx, KeyLanguage, p.Language))
	}
	return errors.Join(errs...)
}
