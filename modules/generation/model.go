package generation

import (
	"slidecast-server/modules/common/model"
)

// CreateVideoRequest - POST /api/generation 요청 바디
type CreateVideoRequest struct {
	IngestionJobID string                        `json:"ingestion_job_id"`
	OwnerID        string                        `json:"owner_id"`
	Language       string                        `json:"language"`
	SlideConfigs   []model.SlideGenerationConfig `json:"slide_configs"`
}

type CreateVideoResponse struct {
	VideoID string `json:"video_id"`
}

// VideoStatusResponse - GET /api/generation/{videoId} 응답
type VideoStatusResponse struct {
	VideoID             string  `json:"video_id"`
	IngestionJobID      string  `json:"ingestion_job_id"`
	JobStatus           string  `json:"job_status"`
	CompletedSlideCount int     `json:"completed_slide_count"`
	TotalSlideCount     int     `json:"total_slide_count"`
	FailedSlides        []int   `json:"failed_slides,omitempty"`
	FinalVideoRef       *string `json:"final_video_ref,omitempty"`
	ErrorMessage        *string `json:"error_message,omitempty"`
}

// ApplyAllRequest - 모든 슬라이드에 동일한 아바타 설정 적용
type ApplyAllRequest struct {
	Avatar model.AvatarConfig `json:"avatar"`
}
