package ingestion

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"slidecast-server/modules/common/model"
)

// 큐의 at-least-once 전달로 같은 메시지가 다시 와도
// 이미 끝난 단계를 processing으로 되돌리면 안 된다
func TestStaleRedelivery(t *testing.T) {
	job := &model.IngestionJob{
		BlobStorageStatus:      model.StatusCompleted,
		ImageExtractionStatus:  model.StatusCompleted,
		ScriptExtractionStatus: model.StatusProcessing,
		JobStatus:              model.StatusProcessing,
	}

	// completed 단계로 재전달된 메시지는 건너뛴다
	assert.True(t, staleRedelivery(job, model.ProcessingImageExtraction))

	// 아직 진행 중인 단계는 정상 처리
	assert.False(t, staleRedelivery(job, model.ProcessingScriptExtraction))
}

func TestStaleRedeliveryPerStage(t *testing.T) {
	cases := []struct {
		status string
		stale  bool
	}{
		{model.StatusPending, false},
		{model.StatusProcessing, false},
		{model.StatusCompleted, true},
		{model.StatusFailed, true},
		{model.StatusUserCancelled, true},
	}

	for _, tc := range cases {
		job := &model.IngestionJob{ScriptExtractionStatus: tc.status}
		assert.Equal(t, tc.stale, staleRedelivery(job, model.ProcessingScriptExtraction),
			"stage status %s", tc.status)
	}
}

// 전체 job이 completed여도 재전달 메시지가 단계를 되돌리면
// overallStatus가 processing으로 퇴행한다 - 단계 기준으로 걸러야 한다
func TestStaleRedeliveryOnCompletedJob(t *testing.T) {
	job := &model.IngestionJob{
		BlobStorageStatus:      model.StatusCompleted,
		ImageExtractionStatus:  model.StatusCompleted,
		ScriptExtractionStatus: model.StatusCompleted,
		JobStatus:              model.StatusCompleted,
	}

	assert.True(t, staleRedelivery(job, model.ProcessingBlobStorage))
	assert.True(t, staleRedelivery(job, model.ProcessingImageExtraction))
	assert.True(t, staleRedelivery(job, model.ProcessingScriptExtraction))
}
