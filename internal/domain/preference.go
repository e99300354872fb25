package domain

// PreferenceKey is the flag name in a recipient's preference map that gates a category.
type PreferenceKey string

const (
	PrefMaterialApprovals    PreferenceKey = "material_approvals"
	PrefDailyReportReminders PreferenceKey = "daily_report_reminders"
	PrefDailyReportUpdates   PreferenceKey = "daily_report_updates"
	PrefSafetyAlerts         PreferenceKey = "safety_alerts"
	PrefEquipmentMaintenance PreferenceKey = "equipment_maintenance"
	PrefSiteAnnouncements    PreferenceKey = "site_announcements"
)

// PreferenceKey returns the category flag for the type. Types that cannot be
// opted out of return false. New types must be added here explicitly.
func (t NotificationType) PreferenceKey() (PreferenceKey, bool) {
	switch t {
	case TypeMaterialApproval, TypeMaterialRequest:
		return PrefMaterialApprovals, true
	case TypeDailyReportReminder:
		return PrefDailyReportReminders, true
	case TypeDailyReportSubmitted, TypeDailyReportApproved, TypeDailyReportRejected:
		return PrefDailyReportUpdates, true
	case TypeSafetyAlert:
		return PrefSafetyAlerts, true
	case TypeEquipmentMaintenance:
		return PrefEquipmentMaintenance, true
	case TypeSiteAnnouncement:
		return PrefSiteAnnouncements, true
	case TypeSystemNotice:
		return "", false
	}
	return "", false
}

// IsOptedOut reports whether the recipient explicitly disabled the category of t.
func IsOptedOut(r Recipient, t NotificationType) bool {
	key, ok := t.PreferenceKey()
	if !ok {
		return false
	}
	return !r.Preferences.Enabled(string(key), true)
}
