package model

// Settings is a flat map of boolean switches.
type Settings map[string]bool

// Privacy setting names.
const (
	PrivacyDataCollection      = "dataCollection"
	PrivacyAnalytics           = "analytics"
	PrivacyPersonalizedContent = "personalizedContent"
	PrivacyShareReadingHistory = "shareReadingHistory"
	PrivacyAutoSync            = "autoSync"
	NotifyNewPapers            = "newPapers"
	NotifyUpdates              = "updates"
	NotifyReminders            = "reminders"
	NotifyRecommendations      = "recommendations"
	NotifySystemUpdates        = "systemUpdates"
)

// DefaultPrivacySettings returns the privacy switches of a fresh install.
func DefaultPrivacySettings() Settings {
	return Settings{
		PrivacyDataCollection:      true,
		PrivacyAnalytics:           true,
		PrivacyPersonalizedContent: true,
		PrivacyShareReadingHistory: false,
		PrivacyAutoSync:            true,
	}
}

// DefaultNotificationSettings returns the notification switches of a fresh install.
func DefaultNotificationSettings() Settings {
	return Settings{
		NotifyNewPapers:       true,
		NotifyUpdates:         true,
		NotifyReminders:       false,
		NotifyRecommendations: true,
		NotifySystemUpdates:   true,
	}
}

// Merge returns defaults overlaid with s, so unknown keys keep their default.
func (s Settings) Merge(defaults Settings) Settings {
	out := make(Settings, len(defaults))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range s {
		out[k] = v
	}
	return out
}
