package generation

import (
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slidecast-server/modules/common/model"
)

func marshalEvent(t *testing.T, ev model.ProgressEvent) []byte {
	t.Helper()
	payload, err := json.Marshal(ev)
	require.NoError(t, err)
	return payload
}

func TestWatchProgressTriggersOnRelevantEvents(t *testing.T) {
	events := make(chan []byte, 8)
	var calls int32

	// 새 클립 기록과 슬라이드 실패만 finalize를 깨운다
	// 중복 기록, 단순 상태 전환, 깨진 페이로드는 무시
	events <- marshalEvent(t, model.ProgressEvent{Changed: true})
	events <- marshalEvent(t, model.ProgressEvent{Changed: false})
	events <- marshalEvent(t, model.ProgressEvent{Status: model.StatusFailed})
	events <- marshalEvent(t, model.ProgressEvent{Status: model.StatusProcessing})
	events <- []byte("not json")
	close(events)

	watchProgress(events, func() { atomic.AddInt32(&calls, 1) })

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

// 이벤트 채널이 닫혀도 진행 중이던 finalize가 끝나기 전에는
// watchProgress가 반환되면 안 된다 - worker 종료가 concat을 끊지 않도록
func TestWatchProgressWaitsForInflightFinalize(t *testing.T) {
	events := make(chan []byte, 1)
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})

	events <- marshalEvent(t, model.ProgressEvent{Changed: true})

	go func() {
		watchProgress(events, func() {
			close(started)
			<-release
		})
		close(done)
	}()

	<-started
	// finalize가 도는 중에 구독이 끊긴 상황
	close(events)

	select {
	case <-done:
		t.Fatal("watchProgress returned while finalize was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watchProgress did not return after finalize finished")
	}
}
