package cancel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"slidecast-server/modules/common/model"
)

type fakeUpdater struct {
	cancelled map[string]bool
	statuses  map[string]string
}

func newFakeUpdater() *fakeUpdater {
	return &fakeUpdater{
		cancelled: make(map[string]bool),
		statuses:  make(map[string]string),
	}
}

func (f *fakeUpdater) IsJobCancelled(jobID string) bool {
	return f.cancelled[jobID]
}

func (f *fakeUpdater) UpdateJobStatus(ctx context.Context, jobID string, status string) error {
	f.statuses[jobID] = status
	return nil
}

func TestCheckBeforeDispatch(t *testing.T) {
	f := newFakeUpdater()

	assert.False(t, CheckBeforeDispatch(f, "job-1", "slide 0"), "live job must proceed")

	f.cancelled["job-1"] = true
	assert.True(t, CheckBeforeDispatch(f, "job-1", "slide 0"), "cancelled job must be skipped")
	assert.Empty(t, f.statuses, "dispatch check must not touch status")
}

func TestCheckBeforeWriteDiscardsCancelledResult(t *testing.T) {
	f := newFakeUpdater()
	ctx := context.Background()

	assert.False(t, CheckBeforeWrite(ctx, f, "job-1", "slide 0"))
	assert.Empty(t, f.statuses)

	// 결과가 준비된 사이에 취소된 경우 - 쓰기를 버리고 취소 상태를 유지
	f.cancelled["job-1"] = true
	assert.True(t, CheckBeforeWrite(ctx, f, "job-1", "slide 0"))
	assert.Equal(t, model.StatusUserCancelled, f.statuses["job-1"])
}

func TestHandleFinalStatus(t *testing.T) {
	f := newFakeUpdater()
	ctx := context.Background()

	assert.False(t, HandleFinalStatus(ctx, f, "job-1"))

	f.cancelled["job-1"] = true
	assert.True(t, HandleFinalStatus(ctx, f, "job-1"))
}
