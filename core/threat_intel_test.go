package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func verdict(t *testing.T, known, hit bool, hitType HitType) *ThreatIntel {
	t.Helper()
	v, err := NewThreatIntel(ThreatIntel{Engine: "engine", IsKnown: known, IsHit: hit, HitType: hitType})
	require.NoError(t, err)
	return v
}

func TestNewThreatIntel(t *testing.T) {
	v, err := NewThreatIntel(ThreatIntel{Engine: "av", IsKnown: true, IsHit: true, HitType: "MALICIOUS"})
	require.NoError(t, err)
	assert.Equal(t, HitMalicious, v.HitType)

	tests := []struct {
		name    string
		verdict ThreatIntel
	}{
		{"hit while unknown", ThreatIntel{IsHit: true, HitType: HitMalicious}},
		{"hit type while unknown", ThreatIntel{HitType: HitSuspicious}},
		{"threat name while unknown", ThreatIntel{ThreatName: "Emotet"}},
		{"confidence while unknown", ThreatIntel{Confidence: Percent(80)}},
		{"hit without type", ThreatIntel{IsKnown: true, IsHit: true}},
		{"confidence out of range", ThreatIntel{IsKnown: true, Confidence: Percent(120)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewThreatIntel(tt.verdict)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestContextThreatIntelCountsVerdicts(t *testing.T) {
	ti, err := NewContextThreatIntel(ContextThreatIntel{
		Indicator: IPAddress("185.220.101.1"),
		Source:    "VirusTotal",
		Timestamp: baseTime,
		Verdicts: []*ThreatIntel{
			verdict(t, true, true, HitMalicious),
			verdict(t, true, true, HitSuspicious),
			verdict(t, true, false, ""),
			verdict(t, false, false, ""),
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, *ti.ScoreHit)
	assert.Equal(t, 4, *ti.ScoreTotal)
	assert.Equal(t, 1, *ti.ScoreHitMal)
	assert.Equal(t, 1, *ti.ScoreHitSus)
	assert.Equal(t, 3, *ti.ScoreKnown)
	assert.Equal(t, 1, *ti.ScoreUnknown)
	assert.Equal(t, 66, ti.RiskScore())
	assert.Equal(t, IndicatorKindIP, ti.IndicatorKind())
}

func TestContextThreatIntelExplicitScores(t *testing.T) {
	ti, err := NewContextThreatIntel(ContextThreatIntel{
		Indicator:   IPAddress("185.220.101.1"),
		Timestamp:   baseTime,
		ScoreHit:    intPtr(3),
		ScoreTotal:  intPtr(70),
		ScoreHitSus: intPtr(1),
		ScoreHitMal: intPtr(2),
		ScoreKnown:  intPtr(60),
	})
	require.NoError(t, err)
	assert.Equal(t, 10, *ti.ScoreUnknown)
	assert.Equal(t, 5, ti.RiskScore())
}

func TestContextThreatIntelScoreErrors(t *testing.T) {
	ip := IPAddress("185.220.101.1")
	tests := []struct {
		name    string
		context ContextThreatIntel
		want    error
	}{
		{
			name:    "hit above total",
			context: ContextThreatIntel{Indicator: ip, ScoreHit: intPtr(5), ScoreTotal: intPtr(2), ScoreHitSus: intPtr(0), ScoreHitMal: intPtr(0)},
			want:    ErrValidation,
		},
		{
			name:    "known above total",
			context: ContextThreatIntel{Indicator: ip, ScoreKnown: intPtr(3), Verdicts: []*ThreatIntel{verdict(t, true, false, "")}},
			want:    ErrValidation,
		},
		{
			name: "unknown inconsistent with known",
			context: ContextThreatIntel{Indicator: ip, ScoreKnown: intPtr(1), ScoreUnknown: intPtr(1),
				Verdicts: []*ThreatIntel{verdict(t, true, false, ""), verdict(t, true, false, ""), verdict(t, true, false, "")}},
			want: ErrValidation,
		},
		{
			name: "derived unknown negative",
			context: ContextThreatIntel{Indicator: ip, ScoreHit: intPtr(0), ScoreTotal: intPtr(1), ScoreHitSus: intPtr(0), ScoreHitMal: intPtr(0),
				Verdicts: []*ThreatIntel{verdict(t, true, false, ""), verdict(t, true, false, ""), verdict(t, true, false, "")}},
			want: ErrFatal,
		},
		{
			name:    "missing indicator",
			context: ContextThreatIntel{},
			want:    ErrType,
		},
		{
			name:    "bad ip indicator",
			context: ContextThreatIntel{Indicator: IPAddress("not-an-ip")},
			want:    ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewContextThreatIntel(tt.context)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestContextThreatIntelNilTypedIndicator(t *testing.T) {
	var file *ContextFile
	_, err := NewContextThreatIntel(ContextThreatIntel{Indicator: file})
	assert.ErrorIs(t, err, ErrType)
}

func TestContextThreatIntelRiskScoreWithoutKnown(t *testing.T) {
	ti, err := NewContextThreatIntel(ContextThreatIntel{
		Indicator: IPAddress("185.220.101.1"),
		Verdicts:  []*ThreatIntel{verdict(t, false, false, "")},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, ti.RiskScore())
}
