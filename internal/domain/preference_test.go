package domain

import "testing"

func TestEveryNotificationTypeHasPreferenceDecision(t *testing.T) {
	t.Parallel()

	optOutFree := map[NotificationType]bool{TypeSystemNotice: true}

	for _, nt := range NotificationTypes() {
		key, ok := nt.PreferenceKey()
		if optOutFree[nt] {
			if ok {
				t.Errorf("%s should not map to a preference key, got %q", nt, key)
			}
			continue
		}
		if !ok || key == "" {
			t.Errorf("%s has no preference key; add it to PreferenceKey()", nt)
		}
	}
}

func TestReportLifecycleTypesShareKey(t *testing.T) {
	t.Parallel()

	for _, nt := range []NotificationType{TypeDailyReportSubmitted, TypeDailyReportApproved, TypeDailyReportRejected} {
		key, _ := nt.PreferenceKey()
		if key != PrefDailyReportUpdates {
			t.Errorf("%s key = %q, want %q", nt, key, PrefDailyReportUpdates)
		}
	}
}

func TestIsOptedOut(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		prefs Preferences
		nt    NotificationType
		want  bool
	}{
		{name: "unset key is enabled", prefs: nil, nt: TypeDailyReportReminder, want: false},
		{name: "explicit true", prefs: Preferences{"daily_report_reminders": true}, nt: TypeDailyReportReminder, want: false},
		{name: "explicit false", prefs: Preferences{"daily_report_reminders": false}, nt: TypeDailyReportReminder, want: true},
		{name: "other key false", prefs: Preferences{"safety_alerts": false}, nt: TypeDailyReportReminder, want: false},
		{name: "unmapped type never opted out", prefs: Preferences{"site_announcements": false}, nt: TypeSystemNotice, want: false},
		{name: "channel flag is not an opt-out", prefs: Preferences{PrefPushEnabled: false}, nt: TypeSafetyAlert, want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := IsOptedOut(Recipient{ID: "u1", Preferences: tt.prefs}, tt.nt)
			if got != tt.want {
				t.Fatalf("IsOptedOut() = %v, want %v", got, tt.want)
			}
		})
	}
}
