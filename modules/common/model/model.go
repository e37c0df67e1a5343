package model

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

const (
	StatusPending       = "pending"
	StatusProcessing    = "processing"
	StatusCompleted     = "completed"
	StatusFailed        = "failed"
	StatusUserCancelled = "user_cancelled"
)

// Processing Type - Ingestion Job의 세 단계
const (
	ProcessingBlobStorage      = "blob_storage"
	ProcessingScriptExtraction = "script_extraction"
	ProcessingImageExtraction  = "image_extraction"
)

// 에러 분류 - 핸들러에서 HTTP 상태로 매핑
var (
	ErrInvalidFormat      = errors.New("invalid presentation format")
	ErrNotFound           = errors.New("not found")
	ErrUnauthorized       = errors.New("owner mismatch")
	ErrConflict           = errors.New("job state conflict")
	ErrStageFailed        = errors.New("pipeline stage failed")
	ErrExternalCapability = errors.New("external capability error")
)

// SlideArtifact - 추출된 슬라이드 아티팩트 (slides JSONB 항목)
// Image Extractor는 image_ref만, Script Extractor는 script만 채운다
type SlideArtifact struct {
	Index    int     `json:"index"`
	ImageRef *string `json:"image_ref,omitempty"`
	Script   *string `json:"script,omitempty"`
}

// IngestionJob - slidecast_ingestion_jobs 테이블 구조
type IngestionJob struct {
	JobID                  string          `json:"job_id"`
	OwnerID                string          `json:"owner_id"`
	SourceFileRef          *string         `json:"source_file_ref"`
	BlobStorageStatus      string          `json:"blob_storage_status"`
	ScriptExtractionStatus string          `json:"script_extraction_status"`
	ImageExtractionStatus  string          `json:"image_extraction_status"`
	JobStatus              string          `json:"job_status"`
	Slides                 []SlideArtifact `json:"slides"`
	ErrorMessage           *string         `json:"error_message"`
	CreatedAt              time.Time       `json:"created_at"`
	StartedAt              *time.Time      `json:"started_at"`
	CompletedAt            *time.Time      `json:"completed_at"`
	UpdatedAt              time.Time       `json:"updated_at"`
}

// StageStatus - processing type별 현재 상태 조회
func (j *IngestionJob) StageStatus(processingType string) string {
	switch processingType {
	case ProcessingBlobStorage:
		return j.BlobStorageStatus
	case ProcessingScriptExtraction:
		return j.ScriptExtractionStatus
	case ProcessingImageExtraction:
		return j.ImageExtractionStatus
	}
	return ""
}

// DeriveOverallStatus - 세 단계 상태에서 전체 상태 계산
// completed: 세 단계 모두 completed
// failed: 하나라도 failed (완료된 단계는 completed 유지)
// 나머지: 하나라도 진행 중이면 processing, 아니면 pending
func DeriveOverallStatus(blob, script, image string) string {
	stages := []string{blob, script, image}

	for _, s := range stages {
		if s == StatusFailed {
			return StatusFailed
		}
	}

	completed := 0
	processing := 0
	for _, s := range stages {
		switch s {
		case StatusCompleted:
			completed++
		case StatusProcessing:
			processing++
		}
	}

	if completed == len(stages) {
		return StatusCompleted
	}
	if processing > 0 || completed > 0 {
		return StatusProcessing
	}
	return StatusPending
}

// IsTerminal - 더 이상 변하지 않는 상태인지
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed || status == StatusUserCancelled
}

// MergeSlideArtifacts - 추출 결과를 index 기준으로 병합
// 기존에 없는 index는 생성, 있으면 partial의 non-nil 필드만 덮어쓴다
// 두 Extractor가 서로 다른 필드를 채우므로 적용 순서와 무관하게 같은 결과가 나온다
func MergeSlideArtifacts(existing, partial []SlideArtifact) []SlideArtifact {
	byIndex := make(map[int]SlideArtifact, len(existing)+len(partial))
	for _, s := range existing {
		byIndex[s.Index] = s
	}

	for _, p := range partial {
		cur, ok := byIndex[p.Index]
		if !ok {
			cur = SlideArtifact{Index: p.Index}
		}
		if p.ImageRef != nil {
			cur.ImageRef = p.ImageRef
		}
		if p.Script != nil {
			cur.Script = p.Script
		}
		byIndex[p.Index] = cur
	}

	merged := make([]SlideArtifact, 0, len(byIndex))
	for _, s := range byIndex {
		merged = append(merged, s)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Index < merged[j].Index })
	return merged
}

// AvatarPosition - 아바타 오버레이 위치 (3 horizontal x top/bottom)
type AvatarPosition string

const (
	PositionLeft        AvatarPosition = "left"
	PositionCenter      AvatarPosition = "center"
	PositionRight       AvatarPosition = "right"
	PositionUpperLeft   AvatarPosition = "upper_left"
	PositionUpperCenter AvatarPosition = "upper_center"
	PositionUpperRight  AvatarPosition = "upper_right"
)

// AvatarSize - 슬라이드 높이 대비 비율로 매핑되는 크기
type AvatarSize string

const (
	SizeSmall  AvatarSize = "small"
	SizeMedium AvatarSize = "medium"
	SizeLarge  AvatarSize = "large"
)

// AvatarPersona - TTS-avatar 엔진이 지원하는 페르소나
type AvatarPersona string

const (
	PersonaEmma   AvatarPersona = "emma"
	PersonaDaniel AvatarPersona = "daniel"
	PersonaSofia  AvatarPersona = "sofia"
	PersonaJun    AvatarPersona = "jun"
)

func ValidPosition(p AvatarPosition) bool {
	switch p {
	case PositionLeft, PositionCenter, PositionRight,
		PositionUpperLeft, PositionUpperCenter, PositionUpperRight:
		return true
	}
	return false
}

func ValidSize(s AvatarSize) bool {
	return s == SizeSmall || s == SizeMedium || s == SizeLarge
}

func ValidPersona(p AvatarPersona) bool {
	switch p {
	case PersonaEmma, PersonaDaniel, PersonaSofia, PersonaJun:
		return true
	}
	return false
}

// AvatarConfig - 슬라이드별 아바타 설정
// ShowAvatar=false면 Persona/Position/Size는 Compositing에서 무시된다
type AvatarConfig struct {
	ShowAvatar         bool           `json:"show_avatar"`
	Persona            AvatarPersona  `json:"persona"`
	Position           AvatarPosition `json:"position"`
	Size               AvatarSize     `json:"size"`
	PauseBeforeSeconds int            `json:"pause_before_seconds"`
	PauseAfterSeconds  int            `json:"pause_after_seconds"`
}

// Validate - 요청 시점 검증 (오버레이를 쓰는 경우에만 enum 검사)
func (c AvatarConfig) Validate() error {
	if c.PauseBeforeSeconds < 0 || c.PauseAfterSeconds < 0 {
		return fmt.Errorf("pause seconds must be non-negative")
	}
	if !c.ShowAvatar {
		return nil
	}
	if !ValidPersona(c.Persona) {
		return fmt.Errorf("unknown avatar persona: %s", c.Persona)
	}
	if !ValidPosition(c.Position) {
		return fmt.Errorf("unknown avatar position: %s", c.Position)
	}
	if !ValidSize(c.Size) {
		return fmt.Errorf("unknown avatar size: %s", c.Size)
	}
	return nil
}

// SlideGenerationConfig - VideoJob의 슬라이드별 생성 설정 (slide_configs JSONB 항목)
type SlideGenerationConfig struct {
	Index  int          `json:"index"`
	Script string       `json:"script"`
	Avatar AvatarConfig `json:"avatar"`
}

// TruncateScript - 스크립트를 최대 글자 수로 자름 (거부가 아니라 조용히 잘라냄)
func TruncateScript(script string, maxLen int) string {
	runes := []rune(script)
	if len(runes) <= maxLen {
		return script
	}
	return string(runes[:maxLen])
}

// ValidateSlideConfigs - slide_configs의 index 집합이 슬라이드와 정확히 일치하는지 검증
func ValidateSlideConfigs(configs []SlideGenerationConfig, slides []SlideArtifact) error {
	if len(configs) != len(slides) {
		return fmt.Errorf("slide config count %d does not match slide count %d", len(configs), len(slides))
	}

	want := make(map[int]bool, len(slides))
	for _, s := range slides {
		want[s.Index] = true
	}

	seen := make(map[int]bool, len(configs))
	for _, c := range configs {
		if seen[c.Index] {
			return fmt.Errorf("duplicate slide config index %d", c.Index)
		}
		seen[c.Index] = true
		if !want[c.Index] {
			return fmt.Errorf("slide config index %d has no matching slide", c.Index)
		}
	}
	return nil
}

// VideoJob - slidecast_video_jobs 테이블 구조
// ClipRefs는 index(문자열 키) → 합성 완료된 클립 ref 맵, completed count는 len으로 파생
type VideoJob struct {
	VideoID         string                  `json:"video_id"`
	IngestionJobID  string                  `json:"ingestion_job_id"`
	OwnerID         string                  `json:"owner_id"`
	Language        string                  `json:"language"`
	SlideConfigs    []SlideGenerationConfig `json:"slide_configs"`
	ClipRefs        map[string]string       `json:"clip_refs"`
	FailedSlides    []int                   `json:"failed_slides"`
	TotalSlideCount int                     `json:"total_slide_count"`
	JobStatus       string                  `json:"job_status"`
	FinalVideoRef   *string                 `json:"final_video_ref"`
	ErrorMessage    *string                 `json:"error_message"`
	CreatedAt       time.Time               `json:"created_at"`
	StartedAt       *time.Time              `json:"started_at"`
	CompletedAt     *time.Time              `json:"completed_at"`
	UpdatedAt       time.Time               `json:"updated_at"`
}

// CompletedSlideCount - 합성 완료된 슬라이드 수 (ClipRefs에서 파생)
func (v *VideoJob) CompletedSlideCount() int {
	return len(v.ClipRefs)
}

// OrderedClipRefs - 클립 ref를 slide index 오름차순으로 정렬해 반환
// 합성 완료 순서와 무관하게 출력 순서는 항상 index 순이다
func OrderedClipRefs(clipRefs map[string]string, total int) ([]string, error) {
	refs := make([]string, 0, total)
	for i := 0; i < total; i++ {
		ref, ok := clipRefs[fmt.Sprintf("%d", i)]
		if !ok {
			return nil, fmt.Errorf("missing composited clip for slide %d", i)
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// StageEvent - Ingestion 단계 전환 이벤트 (Notification Channel 페이로드)
type StageEvent struct {
	JobID          string `json:"job_id"`
	ProcessingType string `json:"processing_type"`
	Status         string `json:"status"`
	Detail         string `json:"detail,omitempty"`
}

// ProgressEvent - Video 생성 진행 이벤트 (Notification Channel 페이로드)
type ProgressEvent struct {
	VideoID             string `json:"video_id"`
	CompletedSlideCount int    `json:"completed_slide_count"`
	TotalSlideCount     int    `json:"total_slide_count"`
	Changed             bool   `json:"changed"`
	Status              string `json:"status,omitempty"`
}
