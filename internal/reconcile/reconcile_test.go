package reconcile

import (
	"testing"

	"sentinel-monitor/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcile_ChannelMapping(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		email ChannelOutcome
		slack ChannelOutcome
	}{
		{
			name:  "email sent, slack absent",
			raw:   `{"email":"sent"}`,
			email: ChannelOutcome{Kind: Sent},
			slack: ChannelOutcome{Kind: NotConfigured},
		},
		{
			name:  "both sent",
			raw:   `{"email":"sent","slack":"sent"}`,
			email: ChannelOutcome{Kind: Sent},
			slack: ChannelOutcome{Kind: Sent},
		},
		{
			name:  "null channel values",
			raw:   `{"email":null,"slack":"not configured"}`,
			email: ChannelOutcome{Kind: NotConfigured},
			slack: ChannelOutcome{Kind: NotConfigured},
		},
		{
			name:  "error strings",
			raw:   `{"email":"error: smtp timeout","slack":"webhook error"}`,
			email: ChannelOutcome{Kind: Failed, Raw: "error: smtp timeout"},
			slack: ChannelOutcome{Kind: Failed, Raw: "webhook error"},
		},
		{
			name:  "error match is case-sensitive",
			raw:   `{"email":"ERROR: upper"}`,
			email: ChannelOutcome{Kind: Unknown, Raw: "ERROR: upper"},
			slack: ChannelOutcome{Kind: NotConfigured},
		},
		{
			name:  "unexpected string",
			raw:   `{"slack":"queued"}`,
			email: ChannelOutcome{Kind: NotConfigured},
			slack: ChannelOutcome{Kind: Unknown, Raw: "queued"},
		},
		{
			name:  "empty string is not a known status",
			raw:   `{"email":"","slack":"sent"}`,
			email: ChannelOutcome{Kind: Unknown, Raw: ""},
			slack: ChannelOutcome{Kind: Sent},
		},
		{
			name:  "non-string value",
			raw:   `{"email":42,"slack":{"ok":true}}`,
			email: ChannelOutcome{Kind: Unknown, Raw: "42"},
			slack: ChannelOutcome{Kind: Unknown, Raw: `{"ok":true}`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := Reconcile(tt.raw)
			assert.False(t, report.Unparsable)
			assert.Equal(t, tt.email, report.Email)
			assert.Equal(t, tt.slack, report.Slack)
		})
	}
}

func TestReconcile_EmptyIsNotConfigured(t *testing.T) {
	for _, raw := range []string{"", "   ", "null"} {
		report := Reconcile(raw)
		assert.False(t, report.Unparsable, "raw %q", raw)
		assert.Equal(t, NotConfigured, report.Email.Kind)
		assert.Equal(t, NotConfigured, report.Slack.Kind)
	}
}

func TestReconcile_IsTotal(t *testing.T) {
	inputs := []string{
		`{"email":"sent"`,
		`{"email":`,
		`{`,
		`}`,
		`[]`,
		`["email","slack"]`,
		`"sent"`,
		`42`,
		`true`,
		`{"email":"se`,
		"\x00\xff\xfe",
		`{'email':'sent'}`,
		`not json at all`,
	}

	for _, raw := range inputs {
		var report StatusReport
		require.NotPanics(t, func() { report = Reconcile(raw) }, "raw %q", raw)
		assert.True(t, report.Unparsable, "raw %q", raw)
		assert.Equal(t, Unknown, report.Email.Kind)
		assert.Equal(t, Unknown, report.Slack.Kind)
		assert.Equal(t, raw, report.Email.Raw)
		assert.Equal(t, raw, report.Raw)
	}
}

func TestReconcile_TruncatedPrefixes(t *testing.T) {
	full := `{"email":"sent","slack":"error: channel_not_found"}`
	for i := 0; i <= len(full); i++ {
		raw := full[:i]
		assert.NotPanics(t, func() { Reconcile(raw) }, "prefix %q", raw)
	}
	assert.Equal(t, Failed, Reconcile(full).Slack.Kind)
	assert.Equal(t, "error: channel_not_found", Reconcile(full).Slack.Reason())
}

func TestChannels(t *testing.T) {
	tests := []struct {
		raw  string
		want []string
	}{
		{`["email","slack"]`, []string{"email", "slack"}},
		{`["slack"]`, []string{"slack"}},
		{`[]`, []string{}},
		{``, []string{}},
		{`null`, []string{}},
		{`["email",`, []string{}},
		{`["email",5]`, []string{}},
		{`{"email":true}`, []string{}},
		{`email`, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got := Channels(tt.raw)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReconciler_Memoizes(t *testing.T) {
	r := NewReconciler(2)
	first := r.Reconcile(`{"email":"sent"}`)
	second := r.Reconcile(`{"email":"sent"}`)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, r.Len())

	r.Reconcile(`{"slack":"sent"}`)
	r.Reconcile(`garbage`)
	assert.Equal(t, 2, r.Len())

	var nilReconciler *Reconciler
	assert.Equal(t, Sent, nilReconciler.Reconcile(`{"email":"sent"}`).Email.Kind)
}

func TestHistorySummaryAndFilter(t *testing.T) {
	records := []model.AlertRecord{
		{ID: "3", AlertType: `["email","slack"]`, Status: `{"email":"sent","slack":"error: token revoked"}`},
		{ID: "", AlertType: `["slack"]`, Status: `{"email":null,"slack":"sent"}`},
		{ID: "1", AlertType: `garbage`, Status: `{"email":`},
	}

	entries := NewReconciler(16).History(records)
	require.Len(t, entries, 3)
	assert.Equal(t, "3", entries[0].Key)
	assert.Equal(t, "1", entries[1].Key, "missing id falls back to position")
	assert.Equal(t, []string{}, entries[2].Channels)
	assert.True(t, entries[2].Status.Unparsable)

	summary := Summarize(entries)
	assert.Equal(t, Summary{Total: 3, Sent: 2, Failed: 1, Unparsable: 1, EmailAlerts: 1, SlackAlerts: 2}, summary)

	assert.Len(t, FilterAll.Apply(entries), 3)
	assert.Len(t, FilterSent.Apply(entries), 2)
	failed := FilterFailed.Apply(entries)
	require.Len(t, failed, 1)
	assert.Equal(t, "3", failed[0].Key)

	assert.Equal(t, FilterAll, ParseFilter("bogus"))
	assert.Equal(t, FilterFailed, ParseFilter("failed"))
}
