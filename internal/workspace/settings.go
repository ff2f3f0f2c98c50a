package workspace

import "github.com/nexuscore/orchestrator/internal/config"

// ReadSettings loads and validates governance/settings.json.
func (s *Store) ReadSettings() (config.Settings, error) {
	data, err := s.read(s.SettingsPath())
	if err != nil {
		return config.Settings{}, err
	}
	return config.Parse(data)
}

// WriteSettings atomically persists settings.
func (s *Store) WriteSettings(settings config.Settings) error {
	data, err := settings.Encode()
	if err != nil {
		return err
	}
	return s.atomicWrite(s.SettingsPath(), data)
}
