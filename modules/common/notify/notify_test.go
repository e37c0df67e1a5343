package notify

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slidecast-server/modules/common/model"
)

func TestChannelKey(t *testing.T) {
	assert.Equal(t, "slidecast:events:abc-123", ChannelKey("abc-123"))
}

func TestStageEventRoundTrip(t *testing.T) {
	event := model.StageEvent{
		JobID:          "job-1",
		ProcessingType: model.ProcessingImageExtraction,
		Status:         model.StatusCompleted,
	}

	payload, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded model.StageEvent
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, event, decoded)

	// detail 없는 이벤트는 필드를 아예 싣지 않는다
	assert.NotContains(t, string(payload), "detail")
}

func TestProgressEventRoundTrip(t *testing.T) {
	event := model.ProgressEvent{
		VideoID:             "video-1",
		CompletedSlideCount: 2,
		TotalSlideCount:     5,
		Changed:             true,
		Status:              model.StatusProcessing,
	}

	payload, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded model.ProgressEvent
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, event, decoded)
}

func TestPublishNilPublisherIsNoop(t *testing.T) {
	var p *Publisher
	assert.NoError(t, p.Publish(context.Background(), "job-1", model.StageEvent{}))
}
