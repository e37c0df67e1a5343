package ingestion

import "slidecast-server/modules/common/model"

// ExtractMessage - Extractor에게 보내는 큐 메시지
// Coordinator는 업로드 성공 시 Extractor별로 독립된 메시지 두 개를 큐에 넣는다
type ExtractMessage struct {
	JobID          string `json:"job_id"`
	ProcessingType string `json:"processing_type"` // script_extraction | image_extraction
}

// SubmitResponse - POST /ingestion 응답
type SubmitResponse struct {
	JobID string `json:"job_id"`
}

// StatusResponse - GET /ingestion/{jobId} 응답 (UI 폴링용 단계별 상태)
type StatusResponse struct {
	JobID            string  `json:"job_id"`
	BlobStorage      string  `json:"blob_storage"`
	ScriptExtraction string  `json:"script_extraction"`
	ImageExtraction  string  `json:"image_extraction"`
	JobStatus        string  `json:"job_status"`
	ErrorMessage     *string `json:"error_message,omitempty"`
}

// SlidesResponse - GET /ingestion/{jobId}/slides 응답
type SlidesResponse struct {
	JobID  string                `json:"job_id"`
	Slides []model.SlideArtifact `json:"slides"`
}
