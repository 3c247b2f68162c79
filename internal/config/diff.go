package config

// ChangedSections names the top-level config sections that differ between
// two snapshots. Used for reload logging; never includes secret values.
func ChangedSections(oldCfg, newCfg *Config) []string {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	var changed []string
	if oldCfg.Telegram != newCfg.Telegram {
		changed = append(changed, "telegram")
	}
	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
	}
	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
	}
	if oldCfg.Reminder != newCfg.Reminder {
		changed = append(changed, "reminder")
	}
	if oldCfg.HTTP != newCfg.HTTP {
		changed = append(changed, "http")
	}
	return changed
}
