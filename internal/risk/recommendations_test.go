package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/parser06/first-responder-risk/internal/models"
)

func TestRecommendationTiers(t *testing.T) {
	tests := []struct {
		name  string
		level models.RiskLevel
		score float64
		want  []string
	}{
		{
			name:  "critical level",
			level: models.RiskCritical,
			score: 0.5,
			want: []string{
				"IMMEDIATE ATTENTION REQUIRED",
				"Consider emergency response",
				"Check officer status immediately",
				"Activate backup support",
			},
		},
		{
			name:  "score above 0.9 promotes to critical tier",
			level: models.RiskLow,
			score: 0.95,
			want: []string{
				"IMMEDIATE ATTENTION REQUIRED",
				"Consider emergency response",
				"Check officer status immediately",
				"Activate backup support",
			},
		},
		{
			name:  "high level",
			level: models.RiskHigh,
			score: 0.5,
			want: []string{
				"High risk detected - monitor closely",
				"Consider taking a break",
				"Check for signs of stress or fatigue",
				"Ensure backup is available",
			},
		},
		{
			name:  "medium level",
			level: models.RiskMedium,
			score: 0.2,
			want: []string{
				"Moderate risk - continue monitoring",
				"Consider reducing intensity",
				"Stay alert for changes",
			},
		},
		{
			name:  "score above 0.4 promotes to medium tier",
			level: models.RiskLow,
			score: 0.45,
			want: []string{
				"Moderate risk - continue monitoring",
				"Consider reducing intensity",
				"Stay alert for changes",
			},
		},
		{
			name:  "low level low score",
			level: models.RiskLow,
			score: 0.1,
			want:  []string{"All clear - continue normal operations"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Recommendations(tt.level, tt.score, &models.FeatureVector{}, false)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRecommendationAddOns(t *testing.T) {
	tests := []struct {
		name    string
		fv      models.FeatureVector
		anomaly bool
		want    []string
	}{
		{
			name: "high stress",
			fv:   models.FeatureVector{StressIndicator: 0.8},
			want: []string{"High stress detected - consider stress management"},
		},
		{
			name: "stress exactly at threshold not triggered",
			fv:   models.FeatureVector{StressIndicator: 0.7},
			want: []string{"All clear - continue normal operations"},
		},
		{
			name: "fatigue",
			fv:   models.FeatureVector{FatigueIndicator: 0.7},
			want: []string{"Fatigue detected - consider rest"},
		},
		{
			name: "anomalous heart rate pattern",
			fv:   models.FeatureVector{HRAnomalyScore: 0.9},
			want: []string{"Unusual heart rate pattern - investigate"},
		},
		{
			name:    "detector anomaly flag",
			fv:      models.FeatureVector{},
			anomaly: true,
			want:    []string{"Anomalous pattern detected - manual review recommended"},
		},
		{
			name: "all add-ons in fixed order",
			fv: models.FeatureVector{
				StressIndicator:  0.9,
				FatigueIndicator: 0.9,
				HRAnomalyScore:   0.9,
			},
			anomaly: true,
			want: []string{
				"High stress detected - consider stress management",
				"Fatigue detected - consider rest",
				"Unusual heart rate pattern - investigate",
				"Anomalous pattern detected - manual review recommended",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Recommendations(models.RiskLow, 0.1, &tt.fv, tt.anomaly)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRecommendationTierThenAddOns(t *testing.T) {
	fv := &models.FeatureVector{StressIndicator: 0.85, FatigueIndicator: 0.65}

	got := Recommendations(models.RiskCritical, 0.95, fv, true)

	want := []string{
		"IMMEDIATE ATTENTION REQUIRED",
		"Consider emergency response",
		"Check officer status immediately",
		"Activate backup support",
		"High stress detected - consider stress management",
		"Fatigue detected - consider rest",
		"Anomalous pattern detected - manual review recommended",
	}
	assert.Equal(t, want, got)
}

func TestAllClearOnlyWhenNothingTriggered(t *testing.T) {
	clean := Recommendations(models.RiskLow, 0.0, &models.FeatureVector{}, false)
	assert.Equal(t, []string{"All clear - continue normal operations"}, clean)

	// 只要有任何一条触发, 不得再附带 all-clear
	flagged := Recommendations(models.RiskLow, 0.0, &models.FeatureVector{}, true)
	assert.NotContains(t, flagged, "All clear - continue normal operations")
}

func TestRecommendationsNilFeatures(t *testing.T) {
	got := Recommendations(models.RiskLow, 0.0, nil, false)
	assert.Equal(t, []string{"All clear - continue normal operations"}, got)
}

func TestRecommendationsDeterministic(t *testing.T) {
	fv := &models.FeatureVector{StressIndicator: 0.75, HRAnomalyScore: 0.85}

	first := Recommendations(models.RiskHigh, 0.72, fv, false)
	second := Recommendations(models.RiskHigh, 0.72, fv, false)

	assert.Equal(t, first, second)
}
