package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// SettingsKey is the key-value entry holding the persisted Settings.
const SettingsKey = "backupSettings"

type Schedule string

const (
	ScheduleDaily   Schedule = "daily"
	ScheduleWeekly  Schedule = "weekly"
	ScheduleMonthly Schedule = "monthly"
)

// Interval returns the minimum time between scheduled backups, or false for
// an unknown schedule.
func (s Schedule) Interval() (time.Duration, bool) {
	const day = 24 * time.Hour
	switch s {
	case ScheduleDaily:
		return day, true
	case ScheduleWeekly:
		return 7 * day, true
	case ScheduleMonthly:
		return 30 * day, true
	default:
		return 0, false
	}
}

type Settings struct {
	AutoBackup     bool       `json:"autoBackup"`
	EncryptBackups bool       `json:"encryptBackups"`
	RetentionDays  int        `json:"retentionDays"`
	MaxBackups     int        `json:"maxBackups"`
	BackupSchedule Schedule   `json:"backupSchedule"`
	LastBackupDate *time.Time `json:"lastBackupDate,omitempty"`
}

func DefaultSettings() Settings {
	return Settings{
		AutoBackup:     true,
		EncryptBackups: true,
		RetentionDays:  30,
		MaxBackups:     10,
		BackupSchedule: ScheduleDaily,
	}
}

// SettingsPatch is a partial update; nil fields are left unchanged.
type SettingsPatch struct {
	AutoBackup     *bool      `json:"autoBackup,omitempty"`
	EncryptBackups *bool      `json:"encryptBackups,omitempty"`
	RetentionDays  *int       `json:"retentionDays,omitempty"`
	MaxBackups     *int       `json:"maxBackups,omitempty"`
	BackupSchedule *Schedule  `json:"backupSchedule,omitempty"`
	LastBackupDate *time.Time `json:"lastBackupDate,omitempty"`
}

func (s Settings) apply(p SettingsPatch) Settings {
	if p.AutoBackup != nil {
		s.AutoBackup = *p.AutoBackup
	}
	if p.EncryptBackups != nil {
		s.EncryptBackups = *p.EncryptBackups
	}
	if p.RetentionDays != nil {
		s.RetentionDays = *p.RetentionDays
	}
	if p.MaxBackups != nil {
		s.MaxBackups = *p.MaxBackups
	}
	if p.BackupSchedule != nil {
		s.BackupSchedule = *p.BackupSchedule
	}
	if p.LastBackupDate != nil {
		t := *p.LastBackupDate
		s.LastBackupDate = &t
	}
	return s
}

// Settings returns a copy of the current settings.
func (s *Service) Settings() Settings {
	s.settingsMu.RLock()
	defer s.settingsMu.RUnlock()
	out := s.settings
	if out.LastBackupDate != nil {
		t := *out.LastBackupDate
		out.LastBackupDate = &t
	}
	return out
}

// LoadSettings merges persisted settings over the defaults. Fields absent
// from the stored object keep their default values.
func (s *Service) LoadSettings(ctx context.Context) error {
	raw, err := s.repo.Get(ctx, SettingsKey)
	if err != nil {
		return fmt.Errorf("load backup settings: %w", err)
	}
	if len(raw) == 0 {
		return nil
	}

	merged := DefaultSettings()
	if err := json.Unmarshal(raw, &merged); err != nil {
		return fmt.Errorf("decode backup settings: %w", err)
	}

	s.settingsMu.Lock()
	s.settings = merged
	s.settingsMu.Unlock()
	return nil
}

// UpdateSettings merges patch into the current settings and persists the
// full object. In-memory settings change only if the write succeeds.
func (s *Service) UpdateSettings(ctx context.Context, patch SettingsPatch) error {
	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()

	next := s.settings.apply(patch)
	raw, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode backup settings: %w", err)
	}
	if err := s.repo.Set(ctx, SettingsKey, raw); err != nil {
		return fmt.Errorf("save backup settings: %w", err)
	}
	s.settings = next
	return nil
}

// ShouldPerformBackup reports whether the schedule calls for a new backup.
// It is true when no backup was ever recorded.
func (s *Service) ShouldPerformBackup() bool {
	st := s.Settings()
	if st.LastBackupDate == nil {
		return true
	}
	interval, ok := st.BackupSchedule.Interval()
	if !ok {
		return false
	}
	return s.now().Sub(*st.LastBackupDate) >= interval
}
