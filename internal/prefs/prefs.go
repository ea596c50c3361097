// Package prefs manages rider preferences: audio enablement, notification
// lead distance, and speech parameters. Preferences are read from the
// key-value store once at startup and written back after every mutation.
package prefs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ridealert/ridealert/internal/kvstore"
)

// Validation errors.
var (
	ErrInvalidLeadStops = errors.New("lead stops must be between 1 and 5")
	ErrInvalidRate      = errors.New("speech rate must be between 0 and 1")
	ErrInvalidVolume    = errors.New("speech volume must be between 0 and 1")
)

// Preferences are the persisted rider settings.
type Preferences struct {
	// AudioEnabled globally enables spoken announcements.
	AudioEnabled bool `json:"audioEnabled"`

	// LeadStops is how many stops before the destination the approaching
	// announcement fires.
	LeadStops int `json:"leadStops"`

	// Speech parameters for normal-priority announcements.
	SpeechRate   float64 `json:"speechRate"`
	SpeechVolume float64 `json:"speechVolume"`
	Language     string  `json:"language"`
}

// Defaults returns the out-of-box preferences.
func Defaults() Preferences {
	return Preferences{
		AudioEnabled: true,
		LeadStops:    2,
		SpeechRate:   0.5,
		SpeechVolume: 1.0,
		Language:     "en-US",
	}
}

// Patch is a partial preference update; nil fields are left unchanged.
type Patch struct {
	AudioEnabled *bool    `json:"audioEnabled,omitempty"`
	LeadStops    *int     `json:"leadStops,omitempty"`
	SpeechRate   *float64 `json:"speechRate,omitempty"`
	SpeechVolume *float64 `json:"speechVolume,omitempty"`
	Language     *string  `json:"language,omitempty"`
}

// ServiceConfig holds configuration for the preference service.
type ServiceConfig struct {
	// Store is the persistence backend (required).
	Store kvstore.Store

	// Logger for service operations.
	Logger zerolog.Logger

	// OnChange is invoked after every successful mutation with the new
	// preferences. Used to push speech parameters into the announcement
	// gate and lead distance into the destination monitor.
	OnChange func(Preferences)
}

// Service owns the in-memory preference document and its persistence.
type Service struct {
	store    kvstore.Store
	logger   zerolog.Logger
	onChange func(Preferences)

	mu    sync.RWMutex
	prefs Preferences
}

// NewService creates the preference service, loading persisted preferences
// or falling back to defaults.
func NewService(ctx context.Context, cfg ServiceConfig) (*Service, error) {
	s := &Service{
		store:    cfg.Store,
		logger:   cfg.Logger,
		onChange: cfg.OnChange,
		prefs:    Defaults(),
	}

	raw, err := cfg.Store.Get(ctx, kvstore.KeyPreferences)
	switch {
	case errors.Is(err, kvstore.ErrKeyNotFound):
		// First run: defaults apply.
	case err != nil:
		return nil, fmt.Errorf("loading preferences: %w", err)
	default:
		if err := json.Unmarshal(raw, &s.prefs); err != nil {
			cfg.Logger.Warn().Err(err).Msg("persisted preferences unreadable, using defaults")
			s.prefs = Defaults()
		}
	}

	return s, nil
}

// Get returns the current preferences.
func (s *Service) Get() Preferences {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs
}

// Update applies a patch, validates, persists, and notifies the change hook.
func (s *Service) Update(ctx context.Context, patch Patch) (Preferences, error) {
	s.mu.Lock()

	next := s.prefs
	if patch.AudioEnabled != nil {
		next.AudioEnabled = *patch.AudioEnabled
	}
	if patch.LeadStops != nil {
		next.LeadStops = *patch.LeadStops
	}
	if patch.SpeechRate != nil {
		next.SpeechRate = *patch.SpeechRate
	}
	if patch.SpeechVolume != nil {
		next.SpeechVolume = *patch.SpeechVolume
	}
	if patch.Language != nil {
		next.Language = *patch.Language
	}

	if err := validate(next); err != nil {
		s.mu.Unlock()
		return Preferences{}, err
	}

	raw, err := json.Marshal(next)
	if err != nil {
		s.mu.Unlock()
		return Preferences{}, fmt.Errorf("encoding preferences: %w", err)
	}
	if err := s.store.Put(ctx, kvstore.KeyPreferences, raw); err != nil {
		s.mu.Unlock()
		return Preferences{}, fmt.Errorf("persisting preferences: %w", err)
	}

	s.prefs = next
	onChange := s.onChange
	s.mu.Unlock()

	s.logger.Info().
		Bool("audio_enabled", next.AudioEnabled).
		Int("lead_stops", next.LeadStops).
		Msg("preferences updated")

	if onChange != nil {
		onChange(next)
	}
	return next, nil
}

func validate(p Preferences) error {
	if p.LeadStops < 1 || p.LeadStops > 5 {
		return ErrInvalidLeadStops
	}
	if p.SpeechRate < 0 || p.SpeechRate > 1 {
		return ErrInvalidRate
	}
	if p.SpeechVolume < 0 || p.SpeechVolume > 1 {
		return ErrInvalidVolume
	}
	return nil
}
