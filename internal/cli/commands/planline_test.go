package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lendscope-labs/lendscope/internal/plan"
)

func TestParsePlanLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		want plan.Plan
	}{
		{
			name: "intent only",
			line: "funnel",
			want: plan.Plan{Intent: plan.IntentFunnel},
		},
		{
			name: "intent and metric",
			line: "trend issuance",
			want: plan.Plan{Intent: plan.IntentTrend, Metric: "issuance"},
		},
		{
			name: "bare word naming a window",
			line: "funnel last_30d",
			want: plan.Plan{Intent: plan.IntentFunnel, Window: "last_30d"},
		},
		{
			name: "metric then window",
			line: "trend issuance last_full_month",
			want: plan.Plan{Intent: plan.IntentTrend, Metric: "issuance", Window: "last_full_month"},
		},
		{
			name: "unknown keys become filters",
			line: "trend app_submissions mtd channel=Email grade=P1",
			want: plan.Plan{
				Intent:  plan.IntentTrend,
				Metric:  "app_submissions",
				Window:  "mtd",
				Filters: map[string]string{"channel": "Email", "grade": "P1"},
			},
		},
		{
			name: "metric list and group-by alias",
			line: "multi_metric metrics=app_submissions,apps_approved by=channel",
			want: plan.Plan{
				Intent:  plan.IntentMultiMetric,
				Metrics: []string{"app_submissions", "apps_approved"},
				GroupBy: "channel",
			},
		},
		{
			name: "explicit range",
			line: "trend issuance start=2024-01-01 end=2024-03-31 explicit=true",
			want: plan.Plan{
				Intent:   plan.IntentTrend,
				Metric:   "issuance",
				Start:    "2024-01-01",
				End:      "2024-03-31",
				Explicit: true,
			},
		},
		{
			name: "modifier granularity and theme",
			line: "distribution issuance modifier=count gran=weekly by=grade theme=dark",
			want: plan.Plan{
				Intent:      plan.IntentDistribution,
				Metric:      "issuance",
				Modifier:    plan.ModifierCount,
				Granularity: plan.GranularityWeekly,
				GroupBy:     "grade",
				Theme:       plan.ThemeDark,
			},
		},
		{
			name: "chart hint and secondary metric",
			line: "relationship app_submissions secondary=issuance chart=scatter",
			want: plan.Plan{
				Intent:    plan.IntentRelationship,
				Metric:    "app_submissions",
				Secondary: "issuance",
				ChartHint: "scatter",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePlanLine(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePlanLineErrors(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		wantErr string
	}{
		{name: "empty line", line: "   ", wantErr: "empty plan line"},
		{name: "unknown intent", line: "histogram issuance", wantErr: "unknown intent"},
		{name: "too many bare words", line: "trend issuance mtd extra", wantErr: "too many bare words"},
		{name: "missing value", line: "trend channel=", wantErr: "malformed pair"},
		{name: "missing key", line: "trend =Email", wantErr: "malformed pair"},
		{name: "bad explicit", line: "trend explicit=maybe", wantErr: "explicit must be true or false"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePlanLine(tt.line)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDecodePlanBothForms(t *testing.T) {
	fromJSON, err := decodePlan([]byte(`{"intent":"trend","metric":"issuance","window":"last_30d"}`))
	require.NoError(t, err)

	fromLine, err := decodePlan([]byte("trend issuance last_30d"))
	require.NoError(t, err)

	assert.Equal(t, fromJSON, fromLine)
}

func TestDecodePlanBadJSON(t *testing.T) {
	_, err := decodePlan([]byte(`{"intent":`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode plan")
}
