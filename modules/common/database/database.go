package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"

	goredis "github.com/redis/go-redis/v9"
	"github.com/supabase-community/supabase-go"

	"slidecast-server/modules/common/config"
	"slidecast-server/modules/common/model"
	redisutil "slidecast-server/modules/common/redis"
)

const (
	ingestionTable = "slidecast_ingestion_jobs"
	videoTable     = "slidecast_video_jobs"
)

type Client struct {
	supabase *supabase.Client
	rdb      *goredis.Client
}

// NewClient - Database 클라이언트 생성
// PostgREST로는 read-merge-write를 원자적으로 만들 수 없어서
// job 단위 merge 락용으로 Redis 연결도 같이 들고 있는다
func NewClient() *Client {
	cfg := config.GetConfig()

	supabaseClient, err := supabase.NewClient(cfg.SupabaseURL, cfg.SupabaseServiceKey, &supabase.ClientOptions{})
	if err != nil {
		log.Printf("❌ Failed to create Supabase client: %v", err)
		return nil
	}

	rdb := redisutil.Connect(cfg)
	if rdb == nil {
		log.Printf("❌ Failed to connect to Redis for merge locks")
		return nil
	}

	return &Client{
		supabase: supabaseClient,
		rdb:      rdb,
	}
}

// withJobLock - 같은 job 레코드에 대한 read-merge-write를 직렬화한다
func (c *Client) withJobLock(ctx context.Context, jobID string, fn func() error) error {
	return redisutil.WithJobLock(ctx, c.rdb, jobID, fn)
}

// ===== Ingestion Jobs =====

// CreateIngestionJob - Ingestion Job 레코드 생성 (세 단계 모두 pending)
func (c *Client) CreateIngestionJob(ctx context.Context, jobID, ownerID string) error {
	log.Printf("💾 Creating ingestion job: %s (owner: %s)", jobID, ownerID)

	insertData := map[string]interface{}{
		"job_id":                   jobID,
		"owner_id":                 ownerID,
		"blob_storage_status":      model.StatusPending,
		"script_extraction_status": model.StatusPending,
		"image_extraction_status":  model.StatusPending,
		"job_status":               model.StatusPending,
		"slides":                   []model.SlideArtifact{},
	}

	_, _, err := c.supabase.From(ingestionTable).
		Insert(insertData, false, "", "", "").
		Execute()

	if err != nil {
		return fmt.Errorf("failed to insert ingestion job: %w", err)
	}

	log.Printf("✅ Ingestion job created: %s", jobID)
	return nil
}

// FetchIngestionJob - Ingestion Job 조회
func (c *Client) FetchIngestionJob(jobID string) (*model.IngestionJob, error) {
	var jobs []model.IngestionJob

	data, _, err := c.supabase.From(ingestionTable).
		Select("*", "exact", false).
		Eq("job_id", jobID).
		Execute()

	if err != nil {
		return nil, fmt.Errorf("failed to query ingestion job: %w", err)
	}

	if err := json.Unmarshal(data, &jobs); err != nil {
		return nil, fmt.Errorf("failed to parse ingestion job: %w", err)
	}

	if len(jobs) == 0 {
		return nil, model.ErrNotFound
	}

	return &jobs[0], nil
}

// SetSourceFileRef - 업로드된 원본 deck의 storage ref 기록
func (c *Client) SetSourceFileRef(ctx context.Context, jobID, ref string) error {
	updateData := map[string]interface{}{
		"source_file_ref": ref,
		"updated_at":      "now()",
	}

	_, _, err := c.supabase.From(ingestionTable).
		Update(updateData, "", "").
		Eq("job_id", jobID).
		Execute()

	if err != nil {
		return fmt.Errorf("failed to set source file ref: %w", err)
	}
	return nil
}

// stageColumn - processing type → 컬럼명
func stageColumn(processingType string) (string, error) {
	switch processingType {
	case model.ProcessingBlobStorage:
		return "blob_storage_status", nil
	case model.ProcessingScriptExtraction:
		return "script_extraction_status", nil
	case model.ProcessingImageExtraction:
		return "image_extraction_status", nil
	}
	return "", fmt.Errorf("unknown processing type: %s", processingType)
}

// UpdateIngestionStage - 단계 상태 기록 + 전체 상태 재계산 (멱등)
// 이미 같은 terminal 상태면 no-op, user_cancelled된 job은 덮어쓰지 않는다
// 전체 상태는 항상 단계 상태에서 파생된다 (상태 메시지가 규칙을 우회하지 않음)
// 두 Extractor가 동시에 완료되면 각자 형제 단계를 stale하게 읽고
// job_status를 낮춰 적을 수 있어서 job 락 안에서 돈다
func (c *Client) UpdateIngestionStage(ctx context.Context, jobID, processingType, status, detail string) (*model.IngestionJob, error) {
	var job *model.IngestionJob
	err := c.withJobLock(ctx, jobID, func() error {
		var innerErr error
		job, innerErr = c.updateIngestionStage(ctx, jobID, processingType, status, detail)
		return innerErr
	})
	return job, err
}

func (c *Client) updateIngestionStage(ctx context.Context, jobID, processingType, status, detail string) (*model.IngestionJob, error) {
	column, err := stageColumn(processingType)
	if err != nil {
		return nil, err
	}

	job, err := c.FetchIngestionJob(jobID)
	if err != nil {
		return nil, err
	}

	// 취소된 job은 resurrect하지 않는다
	if job.JobStatus == model.StatusUserCancelled {
		log.Printf("🛑 Ingestion job %s is cancelled, discarding stage update %s=%s", jobID, processingType, status)
		return job, nil
	}

	// 중복 terminal 이벤트는 no-op (at-least-once 전달 대비)
	current := job.StageStatus(processingType)
	if model.IsTerminal(current) && current == status {
		log.Printf("🔁 Duplicate stage event for %s: %s already %s", jobID, processingType, status)
		return job, nil
	}

	blob, script, image := job.BlobStorageStatus, job.ScriptExtractionStatus, job.ImageExtractionStatus
	switch processingType {
	case model.ProcessingBlobStorage:
		blob = status
	case model.ProcessingScriptExtraction:
		script = status
	case model.ProcessingImageExtraction:
		image = status
	}
	overall := model.DeriveOverallStatus(blob, script, image)

	updateData := map[string]interface{}{
		column:       status,
		"job_status": overall,
		"updated_at": "now()",
	}
	if detail != "" {
		updateData["error_message"] = detail
	}
	if overall == model.StatusProcessing && job.StartedAt == nil {
		updateData["started_at"] = "now()"
	}
	if overall == model.StatusCompleted || overall == model.StatusFailed {
		updateData["completed_at"] = "now()"
	}

	_, _, err = c.supabase.From(ingestionTable).
		Update(updateData, "", "").
		Eq("job_id", jobID).
		Execute()

	if err != nil {
		return nil, fmt.Errorf("failed to update ingestion stage: %w", err)
	}

	log.Printf("📝 Ingestion job %s: %s → %s (overall: %s)", jobID, processingType, status, overall)

	job.BlobStorageStatus = blob
	job.ScriptExtractionStatus = script
	job.ImageExtractionStatus = image
	job.JobStatus = overall
	return job, nil
}

// MergeSlideArtifacts - 추출 결과를 slides JSONB에 index 기준으로 병합
// 두 Extractor가 같은 레코드에 동시에 쓰므로 read-merge-write 전체를
// job 락 안에서 돌려 서로의 필드를 보존한다
func (c *Client) MergeSlideArtifacts(ctx context.Context, jobID string, partial []model.SlideArtifact) error {
	return c.withJobLock(ctx, jobID, func() error {
		return c.mergeSlideArtifacts(ctx, jobID, partial)
	})
}

func (c *Client) mergeSlideArtifacts(ctx context.Context, jobID string, partial []model.SlideArtifact) error {
	job, err := c.FetchIngestionJob(jobID)
	if err != nil {
		return err
	}

	merged := model.MergeSlideArtifacts(job.Slides, partial)

	updateData := map[string]interface{}{
		"slides":     merged,
		"updated_at": "now()",
	}

	_, _, err = c.supabase.From(ingestionTable).
		Update(updateData, "", "").
		Eq("job_id", jobID).
		Execute()

	if err != nil {
		return fmt.Errorf("failed to merge slide artifacts: %w", err)
	}

	log.Printf("✅ Merged %d slide partials into job %s (%d slides total)", len(partial), jobID, len(merged))
	return nil
}

// TombstoneIngestionJob - 삭제 요청 시 user_cancelled로 마킹
func (c *Client) TombstoneIngestionJob(ctx context.Context, jobID string) error {
	updateData := map[string]interface{}{
		"job_status": model.StatusUserCancelled,
		"updated_at": "now()",
	}

	_, _, err := c.supabase.From(ingestionTable).
		Update(updateData, "", "").
		Eq("job_id", jobID).
		Execute()

	if err != nil {
		return fmt.Errorf("failed to tombstone ingestion job: %w", err)
	}

	log.Printf("🗑️  Ingestion job tombstoned: %s", jobID)
	return nil
}

// ===== Video Jobs =====

// CreateVideoJob - Video Job 레코드 생성
func (c *Client) CreateVideoJob(ctx context.Context, job *model.VideoJob) error {
	log.Printf("💾 Creating video job: %s (ingestion: %s, slides: %d)",
		job.VideoID, job.IngestionJobID, job.TotalSlideCount)

	insertData := map[string]interface{}{
		"video_id":          job.VideoID,
		"ingestion_job_id":  job.IngestionJobID,
		"owner_id":          job.OwnerID,
		"language":          job.Language,
		"slide_configs":     job.SlideConfigs,
		"clip_refs":         map[string]string{},
		"failed_slides":     []int{},
		"total_slide_count": job.TotalSlideCount,
		"job_status":        model.StatusPending,
	}

	_, _, err := c.supabase.From(videoTable).
		Insert(insertData, false, "", "", "").
		Execute()

	if err != nil {
		return fmt.Errorf("failed to insert video job: %w", err)
	}

	log.Printf("✅ Video job created: %s", job.VideoID)
	return nil
}

// FetchVideoJob - Video Job 조회
func (c *Client) FetchVideoJob(videoID string) (*model.VideoJob, error) {
	var jobs []model.VideoJob

	data, _, err := c.supabase.From(videoTable).
		Select("*", "exact", false).
		Eq("video_id", videoID).
		Execute()

	if err != nil {
		return nil, fmt.Errorf("failed to query video job: %w", err)
	}

	if err := json.Unmarshal(data, &jobs); err != nil {
		return nil, fmt.Errorf("failed to parse video job: %w", err)
	}

	if len(jobs) == 0 {
		return nil, model.ErrNotFound
	}

	return &jobs[0], nil
}

// FetchVideoJobsByIngestion - Ingestion Job에 딸린 Video Job들 조회 (cascade 삭제용)
func (c *Client) FetchVideoJobsByIngestion(ingestionJobID string) ([]model.VideoJob, error) {
	var jobs []model.VideoJob

	data, _, err := c.supabase.From(videoTable).
		Select("*", "exact", false).
		Eq("ingestion_job_id", ingestionJobID).
		Execute()

	if err != nil {
		return nil, fmt.Errorf("failed to query video jobs: %w", err)
	}

	if err := json.Unmarshal(data, &jobs); err != nil {
		return nil, fmt.Errorf("failed to parse video jobs: %w", err)
	}

	return jobs, nil
}

// UpdateVideoJobStatus - Video Job 상태 업데이트
// terminal 상태는 덮어쓰지 않는다 (취소/실패 보존)
func (c *Client) UpdateVideoJobStatus(ctx context.Context, videoID, status string) error {
	job, err := c.FetchVideoJob(videoID)
	if err != nil {
		return err
	}
	if model.IsTerminal(job.JobStatus) {
		log.Printf("🔁 Video job %s already %s, skipping status %s", videoID, job.JobStatus, status)
		return nil
	}

	updateData := map[string]interface{}{
		"job_status": status,
		"updated_at": "now()",
	}
	if status == model.StatusProcessing {
		updateData["started_at"] = "now()"
	} else if status == model.StatusCompleted || status == model.StatusFailed {
		updateData["completed_at"] = "now()"
	}

	_, _, err = c.supabase.From(videoTable).
		Update(updateData, "", "").
		Eq("video_id", videoID).
		Execute()

	if err != nil {
		return fmt.Errorf("failed to update video job status: %w", err)
	}

	log.Printf("📝 Video job %s status updated to: %s", videoID, status)
	return nil
}

// SetVideoJobError - job 레벨 실패 확정 + 상세 메시지 기록
func (c *Client) SetVideoJobError(ctx context.Context, videoID, detail string) error {
	job, err := c.FetchVideoJob(videoID)
	if err != nil {
		return err
	}
	if model.IsTerminal(job.JobStatus) {
		return nil
	}

	updateData := map[string]interface{}{
		"job_status":    model.StatusFailed,
		"error_message": detail,
		"completed_at":  "now()",
		"updated_at":    "now()",
	}

	_, _, err = c.supabase.From(videoTable).
		Update(updateData, "", "").
		Eq("video_id", videoID).
		Execute()

	if err != nil {
		return fmt.Errorf("failed to set video job error: %w", err)
	}

	log.Printf("❌ Video job %s failed: %s", videoID, detail)
	return nil
}

// RecordSlideClip - 합성 완료된 클립 ref를 index 키로 기록 (멱등)
// completed count는 clip_refs 길이에서 파생되므로 중복 기록해도 카운트가 늘지 않는다
// changed=false면 이미 기록된 index였다는 뜻 (at-least-once 전달 대비)
// N개 슬라이드 워커가 clip_refs 전체 맵을 덮어쓰므로 job 락 안에서 병합한다
func (c *Client) RecordSlideClip(ctx context.Context, videoID string, index int, ref string) (completed, total int, changed bool, err error) {
	err = c.withJobLock(ctx, videoID, func() error {
		var innerErr error
		completed, total, changed, innerErr = c.recordSlideClip(ctx, videoID, index, ref)
		return innerErr
	})
	return completed, total, changed, err
}

func (c *Client) recordSlideClip(ctx context.Context, videoID string, index int, ref string) (completed, total int, changed bool, err error) {
	job, err := c.FetchVideoJob(videoID)
	if err != nil {
		return 0, 0, false, err
	}

	// 취소된 job의 결과는 버린다
	if job.JobStatus == model.StatusUserCancelled {
		log.Printf("🛑 Video job %s is cancelled, discarding clip for slide %d", videoID, index)
		return job.CompletedSlideCount(), job.TotalSlideCount, false, nil
	}

	key := strconv.Itoa(index)
	if job.ClipRefs == nil {
		job.ClipRefs = map[string]string{}
	}
	_, exists := job.ClipRefs[key]
	job.ClipRefs[key] = ref

	updateData := map[string]interface{}{
		"clip_refs":  job.ClipRefs,
		"updated_at": "now()",
	}

	_, _, err = c.supabase.From(videoTable).
		Update(updateData, "", "").
		Eq("video_id", videoID).
		Execute()

	if err != nil {
		return 0, 0, false, fmt.Errorf("failed to record slide clip: %w", err)
	}

	completed = len(job.ClipRefs)
	log.Printf("📊 Video job %s progress: %d/%d (slide %d)", videoID, completed, job.TotalSlideCount, index)
	return completed, job.TotalSlideCount, !exists, nil
}

// RecordSlideFailure - 슬라이드 하나의 terminal 실패 기록
// 형제 슬라이드에는 전파하지 않는다 - job 레벨 실패 판단은 Concatenation watcher가 한다
// failed_slides 배열도 read-merge-write라 job 락 안에서 돈다
func (c *Client) RecordSlideFailure(ctx context.Context, videoID string, index int, detail string) error {
	return c.withJobLock(ctx, videoID, func() error {
		return c.recordSlideFailure(ctx, videoID, index, detail)
	})
}

func (c *Client) recordSlideFailure(ctx context.Context, videoID string, index int, detail string) error {
	job, err := c.FetchVideoJob(videoID)
	if err != nil {
		return err
	}

	if job.JobStatus == model.StatusUserCancelled {
		return nil
	}

	for _, f := range job.FailedSlides {
		if f == index {
			return nil // 이미 기록됨
		}
	}

	updateData := map[string]interface{}{
		"failed_slides": append(job.FailedSlides, index),
		"error_message": fmt.Sprintf("slide %d: %s", index, detail),
		"updated_at":    "now()",
	}

	_, _, err = c.supabase.From(videoTable).
		Update(updateData, "", "").
		Eq("video_id", videoID).
		Execute()

	if err != nil {
		return fmt.Errorf("failed to record slide failure: %w", err)
	}

	log.Printf("❌ Video job %s: slide %d failed (%s)", videoID, index, detail)
	return nil
}

// SetFinalVideoRef - 최종 비디오 ref 기록 + completed 전환
func (c *Client) SetFinalVideoRef(ctx context.Context, videoID, ref string) error {
	updateData := map[string]interface{}{
		"final_video_ref": ref,
		"job_status":      model.StatusCompleted,
		"completed_at":    "now()",
		"updated_at":      "now()",
	}

	_, _, err := c.supabase.From(videoTable).
		Update(updateData, "", "").
		Eq("video_id", videoID).
		Execute()

	if err != nil {
		return fmt.Errorf("failed to set final video ref: %w", err)
	}

	log.Printf("🎬 Video job %s completed: %s", videoID, ref)
	return nil
}

// ReplaceSlideConfigs - 기본 설정 일괄 적용 (단일 쓰기로 N개 교체)
// N번의 개별 업데이트가 아니라 한 번의 트랜잭션이라 중간 상태가 관측되지 않는다
func (c *Client) ReplaceSlideConfigs(ctx context.Context, videoID string, configs []model.SlideGenerationConfig) error {
	updateData := map[string]interface{}{
		"slide_configs": configs,
		"updated_at":    "now()",
	}

	_, _, err := c.supabase.From(videoTable).
		Update(updateData, "", "").
		Eq("video_id", videoID).
		Execute()

	if err != nil {
		return fmt.Errorf("failed to replace slide configs: %w", err)
	}

	log.Printf("✅ Replaced %d slide configs for video job %s", len(configs), videoID)
	return nil
}

// TombstoneVideoJob - 삭제 요청 시 user_cancelled로 마킹
func (c *Client) TombstoneVideoJob(ctx context.Context, videoID string) error {
	updateData := map[string]interface{}{
		"job_status": model.StatusUserCancelled,
		"updated_at": "now()",
	}

	_, _, err := c.supabase.From(videoTable).
		Update(updateData, "", "").
		Eq("video_id", videoID).
		Execute()

	if err != nil {
		return fmt.Errorf("failed to tombstone video job: %w", err)
	}

	log.Printf("🗑️  Video job tombstoned: %s", videoID)
	return nil
}
