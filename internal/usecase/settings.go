package usecase

import (
	"context"
	"fmt"
	"sync"

	"Pivot/internal/domain/models"
	drepo "Pivot/internal/domain/repository"
	applogger "Pivot/pkg/logger"
)

// SettingsService owns the signal rule set and persists every change.
// Changes apply to the next evaluation; existing signal states are not
// re-evaluated.
type SettingsService struct {
	store drepo.SettingsStore
	l     *applogger.Logger

	mu sync.RWMutex
	s  models.Settings
}

// NewSettingsService starts from DefaultSettings. store may be nil.
func NewSettingsService(store drepo.SettingsStore, l *applogger.Logger) *SettingsService {
	if l == nil {
		l = applogger.NewNop()
	}
	return &SettingsService{store: store, l: l, s: models.DefaultSettings()}
}

var _ SettingsSource = (*SettingsService)(nil)

// Load restores persisted settings. An out-of-range stored threshold falls
// back to the default.
func (s *SettingsService) Load(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	st, ok, err := s.store.LoadSettings(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if !ok {
		return nil
	}
	if !validThreshold(st.RSIThreshold) {
		st.RSIThreshold = models.DefaultSettings().RSIThreshold
	}
	s.mu.Lock()
	s.s = st
	s.mu.Unlock()
	return nil
}

// Current returns a copy of the settings.
func (s *SettingsService) Current() models.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.s
}

func (s *SettingsService) ToggleRSI(ctx context.Context) models.Settings {
	return s.update(ctx, func(st *models.Settings) { st.RSIEnabled = !st.RSIEnabled })
}

func (s *SettingsService) ToggleSMA(ctx context.Context) models.Settings {
	return s.update(ctx, func(st *models.Settings) { st.SMAEnabled = !st.SMAEnabled })
}

func (s *SettingsService) ToggleMACD(ctx context.Context) models.Settings {
	return s.update(ctx, func(st *models.Settings) { st.MACDEnabled = !st.MACDEnabled })
}

// SetRSIThreshold accepts values in [1, 100].
func (s *SettingsService) SetRSIThreshold(ctx context.Context, v float64) (models.Settings, error) {
	if !validThreshold(v) {
		return s.Current(), fmt.Errorf("%w: %v", models.ErrInvalidThreshold, v)
	}
	return s.update(ctx, func(st *models.Settings) { st.RSIThreshold = v }), nil
}

func (s *SettingsService) update(ctx context.Context, fn func(*models.Settings)) models.Settings {
	s.mu.Lock()
	fn(&s.s)
	next := s.s
	// saved under the lock so stores see changes in order
	if s.store != nil {
		if err := s.store.SaveSettings(ctx, next); err != nil {
			s.l.Warn("save settings failed", applogger.Error(err))
		}
	}
	s.mu.Unlock()

	s.l.Info("settings changed",
		applogger.Bool("rsi", next.RSIEnabled),
		applogger.Float64("rsi_threshold", next.RSIThreshold),
		applogger.Bool("sma", next.SMAEnabled),
		applogger.Bool("macd", next.MACDEnabled))
	return next
}

func validThreshold(v float64) bool { return v >= 1 && v <= 100 }
