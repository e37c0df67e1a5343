package model

import (
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveOverallStatus(t *testing.T) {
	tests := []struct {
		name                string
		blob, script, image string
		want                string
	}{
		{"all pending", StatusPending, StatusPending, StatusPending, StatusPending},
		{"all completed", StatusCompleted, StatusCompleted, StatusCompleted, StatusCompleted},
		{"two completed one processing", StatusCompleted, StatusCompleted, StatusProcessing, StatusProcessing},
		{"two completed one pending", StatusCompleted, StatusCompleted, StatusPending, StatusProcessing},
		{"one failed others completed", StatusCompleted, StatusFailed, StatusCompleted, StatusFailed},
		{"one failed others processing", StatusProcessing, StatusProcessing, StatusFailed, StatusFailed},
		{"failed wins over pending", StatusPending, StatusPending, StatusFailed, StatusFailed},
		{"blob processing only", StatusProcessing, StatusPending, StatusPending, StatusProcessing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveOverallStatus(tt.blob, tt.script, tt.image))
		})
	}
}

// completed는 오직 세 단계가 전부 completed일 때만 나와야 한다
func TestDeriveOverallStatusCompletedIff(t *testing.T) {
	statuses := []string{StatusPending, StatusProcessing, StatusCompleted, StatusFailed}
	for _, b := range statuses {
		for _, s := range statuses {
			for _, i := range statuses {
				got := DeriveOverallStatus(b, s, i)
				allDone := b == StatusCompleted && s == StatusCompleted && i == StatusCompleted
				if allDone {
					assert.Equal(t, StatusCompleted, got)
				} else {
					assert.NotEqual(t, StatusCompleted, got, "blob=%s script=%s image=%s", b, s, i)
				}
			}
		}
	}
}

func strPtr(s string) *string { return &s }

func TestMergeSlideArtifacts(t *testing.T) {
	images := []SlideArtifact{
		{Index: 0, ImageRef: strPtr("slides/j1/slide-0.webp")},
		{Index: 1, ImageRef: strPtr("slides/j1/slide-1.webp")},
		{Index: 2, ImageRef: strPtr("slides/j1/slide-2.webp")},
	}
	scripts := []SlideArtifact{
		{Index: 0, Script: strPtr("intro")},
		{Index: 2, Script: strPtr("outro")},
	}

	// 이미지 먼저, 스크립트 나중
	a := MergeSlideArtifacts(nil, images)
	a = MergeSlideArtifacts(a, scripts)

	// 스크립트 먼저, 이미지 나중
	b := MergeSlideArtifacts(nil, scripts)
	b = MergeSlideArtifacts(b, images)

	assert.Equal(t, a, b, "merge must be order independent")

	require.Len(t, a, 3)
	for i, s := range a {
		assert.Equal(t, i, s.Index)
		require.NotNil(t, s.ImageRef)
	}
	require.NotNil(t, a[0].Script)
	assert.Equal(t, "intro", *a[0].Script)
	assert.Nil(t, a[1].Script, "slide without notes keeps script absent")
}

// 같은 partial을 두 번 적용해도 결과가 같아야 한다 (at-least-once 전달 대비)
func TestMergeSlideArtifactsIdempotent(t *testing.T) {
	partial := []SlideArtifact{{Index: 0, ImageRef: strPtr("ref")}}

	once := MergeSlideArtifacts(nil, partial)
	twice := MergeSlideArtifacts(once, partial)

	assert.Equal(t, once, twice)
}

func TestTruncateScript(t *testing.T) {
	assert.Equal(t, "short", TruncateScript("short", 500))
	assert.Equal(t, "", TruncateScript("", 500))

	long := strings.Repeat("a", 600)
	got := TruncateScript(long, 500)
	assert.Len(t, []rune(got), 500)

	// 멀티바이트도 rune 단위로 잘라야 한다
	korean := strings.Repeat("가", 501)
	got = TruncateScript(korean, 500)
	assert.Len(t, []rune(got), 500)
	assert.Equal(t, strings.Repeat("가", 500), got)
}

func TestValidateSlideConfigs(t *testing.T) {
	slides := []SlideArtifact{{Index: 0}, {Index: 1}, {Index: 2}}

	ok := []SlideGenerationConfig{{Index: 2}, {Index: 0}, {Index: 1}}
	assert.NoError(t, ValidateSlideConfigs(ok, slides))

	missing := []SlideGenerationConfig{{Index: 0}, {Index: 1}}
	assert.Error(t, ValidateSlideConfigs(missing, slides))

	duplicate := []SlideGenerationConfig{{Index: 0}, {Index: 1}, {Index: 1}}
	assert.Error(t, ValidateSlideConfigs(duplicate, slides))

	outOfRange := []SlideGenerationConfig{{Index: 0}, {Index: 1}, {Index: 5}}
	assert.Error(t, ValidateSlideConfigs(outOfRange, slides))
}

// 합성 완료 순서가 {2,0,1}이어도 출력 순서는 {0,1,2}
func TestOrderedClipRefs(t *testing.T) {
	clipRefs := map[string]string{}
	for _, idx := range []int{2, 0, 1} {
		clipRefs[strconv.Itoa(idx)] = fmt.Sprintf("clips/v1/slide-%d.mp4", idx)
	}

	refs, err := OrderedClipRefs(clipRefs, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"clips/v1/slide-0.mp4",
		"clips/v1/slide-1.mp4",
		"clips/v1/slide-2.mp4",
	}, refs)

	_, err = OrderedClipRefs(map[string]string{"0": "a", "2": "c"}, 3)
	assert.Error(t, err, "missing clip must fail instead of partial concatenation")
}

func TestAvatarConfigValidate(t *testing.T) {
	valid := AvatarConfig{
		ShowAvatar: true,
		Persona:    PersonaEmma,
		Position:   PositionUpperRight,
		Size:       SizeMedium,
	}
	assert.NoError(t, valid.Validate())

	// ShowAvatar=false면 enum 필드는 검사하지 않는다
	hidden := AvatarConfig{ShowAvatar: false, Persona: "nope", Position: "nope", Size: "nope"}
	assert.NoError(t, hidden.Validate())

	badPersona := valid
	badPersona.Persona = "ghost"
	assert.Error(t, badPersona.Validate())

	badPause := valid
	badPause.PauseBeforeSeconds = -1
	assert.Error(t, badPause.Validate())
}

func TestVideoJobCompletedSlideCount(t *testing.T) {
	job := VideoJob{
		TotalSlideCount: 3,
		ClipRefs:        map[string]string{"0": "a", "2": "c"},
	}
	assert.Equal(t, 2, job.CompletedSlideCount())
}
