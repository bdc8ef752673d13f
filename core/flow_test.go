package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveFlowDirection(t *testing.T) {
	tests := []struct {
		src, dst string
		want     FlowDirection
	}{
		{"10.0.0.5", "8.8.8.8", FlowLocalToRemote},
		{"8.8.8.8", "10.0.0.5", FlowRemoteToLocal},
		{"10.0.0.5", "192.168.1.1", FlowLocalToLocal},
		{"8.8.8.8", "1.1.1.1", FlowRemoteToRemote},
	}

	for _, tt := range tests {
		t.Run(tt.src+"->"+tt.dst, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveFlowDirection(tt.src, tt.dst))
		})
	}
}

func TestNewContextFlow(t *testing.T) {
	t.Run("defaults and derived direction", func(t *testing.T) {
		f := newTestFlow(t, "192.168.1.5", "1.1.1.1", baseTime)

		assert.Equal(t, FlowLocalToRemote, f.FlowDirection)
		assert.Equal(t, DefaultFlowCategory, f.Category)
		assert.Equal(t, DefaultFlowSubCategory, f.SubCategory)
		assert.GreaterOrEqual(t, f.FlowID, 1)
		assert.LessOrEqual(t, f.FlowID, MaxFlowID)
		assert.NotEmpty(t, f.UUID)
		assert.Equal(t, DefaultRelevance, f.Relevance())
	})

	t.Run("explicit direction is kept", func(t *testing.T) {
		f, err := NewContextFlow(ContextFlow{
			Timestamp:     baseTime,
			SourceIP:      "8.8.8.8",
			DestinationIP: "8.8.4.4",
			FlowDirection: FlowLocalToLocal,
		})
		require.NoError(t, err)
		assert.Equal(t, FlowLocalToLocal, f.FlowDirection)
	})

	tests := []struct {
		name string
		flow ContextFlow
	}{
		{"missing timestamp", ContextFlow{SourceIP: "10.0.0.1", DestinationIP: "10.0.0.2"}},
		{"bad source ip", ContextFlow{Timestamp: baseTime, SourceIP: "10.0.0", DestinationIP: "10.0.0.2"}},
		{"missing destination ip", ContextFlow{Timestamp: baseTime, SourceIP: "10.0.0.1"}},
		{"port out of range", ContextFlow{Timestamp: baseTime, SourceIP: "10.0.0.1", DestinationIP: "10.0.0.2", DestinationPort: 70000}},
		{"flow id out of range", ContextFlow{Timestamp: baseTime, SourceIP: "10.0.0.1", DestinationIP: "10.0.0.2", FlowID: MaxFlowID + 1}},
		{"unknown direction", ContextFlow{Timestamp: baseTime, SourceIP: "10.0.0.1", DestinationIP: "10.0.0.2", FlowDirection: "X2Y"}},
		{"invalid relevance", ContextFlow{Timestamp: baseTime, SourceIP: "10.0.0.1", DestinationIP: "10.0.0.2", DetectionRelevance: Percent(101)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewContextFlow(tt.flow)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestContextFlowRender(t *testing.T) {
	f := newTestFlow(t, "192.168.1.5", "1.1.1.1", baseTime)

	var rendered map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(f.String()), &rendered))

	assert.Equal(t, "L2R", rendered["flow_direction"])
	assert.Equal(t, "192.168.1.5", rendered["source_ip"])
	assert.EqualValues(t, 443, rendered["destination_port"])
	assert.NotContains(t, rendered, "data")
	assert.NotContains(t, rendered, "http")
	assert.NotContains(t, rendered, "process_id")

	keys := f.Projection().Sparse().Keys()
	assert.Equal(t, "related_detection_uuid", f.Projection().Keys()[0])
	assert.Equal(t, "uuid", keys[len(keys)-1])
}
