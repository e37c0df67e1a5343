package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"slidecast-server/modules/common/config"
	"slidecast-server/modules/common/database"
	"slidecast-server/modules/common/model"
	"slidecast-server/modules/common/notify"
	redisutil "slidecast-server/modules/common/redis"
	"slidecast-server/modules/common/storage"
	"slidecast-server/modules/ingestion/extract"
)

type Service struct {
	db      *database.Client
	storage *storage.Client
	redis   *goredis.Client
	notify  *notify.Publisher
}

// NewService - Ingestion 서비스 생성
func NewService() *Service {
	cfg := config.GetConfig()

	dbClient := database.NewClient()
	if dbClient == nil {
		log.Printf("❌ Failed to initialize Database client")
		return nil
	}

	redisClient := redisutil.Connect(cfg)
	if redisClient == nil {
		log.Printf("❌ Failed to connect to Redis")
		return nil
	}

	return &Service{
		db:      dbClient,
		storage: storage.NewClient(),
		redis:   redisClient,
		notify:  notify.NewPublisher(redisClient),
	}
}

// IsJobCancelled - Job 취소 여부 확인
func (s *Service) IsJobCancelled(jobID string) bool {
	if s.redis == nil {
		return false
	}
	return redisutil.IsJobCancelled(s.redis, jobID)
}

// UpdateJobStatus - cancel 패키지의 StatusUpdater 구현
// Ingestion job에서는 tombstone 유지가 전부라 user_cancelled만 처리한다
func (s *Service) UpdateJobStatus(ctx context.Context, jobID string, status string) error {
	if status == model.StatusUserCancelled {
		return s.db.TombstoneIngestionJob(ctx, jobID)
	}
	return nil
}

// SubmitIngestion - 업로드 처리: job 생성 → 원본 저장 → Extractor 팬아웃
// 추출을 기다리지 않고 job_id를 바로 반환한다
func (s *Service) SubmitIngestion(ctx context.Context, fileData []byte, ownerID string) (string, error) {
	// 1. 컨테이너 포맷 검증 (동기 거부)
	if !extract.IsValidContainer(fileData) {
		return "", model.ErrInvalidFormat
	}

	jobID := uuid.New().String()
	log.Printf("📥 New ingestion job: %s (owner: %s, %d bytes)", jobID, ownerID, len(fileData))

	// 2. Job 레코드 생성 (세 단계 모두 pending)
	if err := s.db.CreateIngestionJob(ctx, jobID, ownerID); err != nil {
		return "", err
	}

	// 3. blob_storage 단계: processing → 원본 업로드
	if _, err := s.db.UpdateIngestionStage(ctx, jobID, model.ProcessingBlobStorage, model.StatusProcessing, ""); err != nil {
		log.Printf("⚠️ Failed to mark blob storage processing: %v", err)
	}

	ref, err := s.storage.UploadDeck(ctx, fileData, jobID)
	if err != nil {
		// 업로드 실패 시 job 즉시 실패, 추출은 dispatch하지 않는다
		log.Printf("❌ Deck upload failed for job %s: %v", jobID, err)
		s.failStage(ctx, jobID, model.ProcessingBlobStorage, fmt.Sprintf("deck upload failed: %v", err))
		return jobID, nil
	}

	if err := s.db.SetSourceFileRef(ctx, jobID, ref); err != nil {
		log.Printf("⚠️ Failed to set source file ref: %v", err)
	}

	s.completeStage(ctx, jobID, model.ProcessingBlobStorage)

	// 4. Extractor 두 개에 독립 메시지 dispatch (병렬, 서로 기다리지 않음)
	for _, processingType := range []string{model.ProcessingScriptExtraction, model.ProcessingImageExtraction} {
		msg := ExtractMessage{JobID: jobID, ProcessingType: processingType}
		payload, _ := json.Marshal(msg)
		if err := s.redis.LPush(ctx, redisutil.IngestQueue, payload).Err(); err != nil {
			log.Printf("❌ Failed to enqueue %s for job %s: %v", processingType, jobID, err)
			s.failStage(ctx, jobID, processingType, fmt.Sprintf("enqueue failed: %v", err))
			continue
		}
		log.Printf("📨 Dispatched %s for job %s", processingType, jobID)
	}

	return jobID, nil
}

// completeStage - 단계 완료 기록 + 이벤트 발행
func (s *Service) completeStage(ctx context.Context, jobID, processingType string) {
	if _, err := s.db.UpdateIngestionStage(ctx, jobID, processingType, model.StatusCompleted, ""); err != nil {
		log.Printf("⚠️ Failed to complete stage %s for %s: %v", processingType, jobID, err)
		return
	}
	s.publishStageEvent(ctx, jobID, processingType, model.StatusCompleted, "")
}

// failStage - 단계 실패 기록 + 이벤트 발행
// 형제 Extractor에는 전파하지 않는다 - 전체 상태는 파생 규칙이 계산
func (s *Service) failStage(ctx context.Context, jobID, processingType, detail string) {
	if _, err := s.db.UpdateIngestionStage(ctx, jobID, processingType, model.StatusFailed, detail); err != nil {
		log.Printf("⚠️ Failed to fail stage %s for %s: %v", processingType, jobID, err)
		return
	}
	s.publishStageEvent(ctx, jobID, processingType, model.StatusFailed, detail)
}

func (s *Service) publishStageEvent(ctx context.Context, jobID, processingType, status, detail string) {
	event := model.StageEvent{
		JobID:          jobID,
		ProcessingType: processingType,
		Status:         status,
		Detail:         detail,
	}
	if err := s.notify.Publish(ctx, jobID, event); err != nil {
		log.Printf("⚠️ Failed to publish stage event for %s: %v", jobID, err)
	}
}

// GetStatus - 단계별 상태 조회 (UI 폴링 - pull 기반 current state)
func (s *Service) GetStatus(jobID, ownerID string) (*StatusResponse, error) {
	job, err := s.fetchOwned(jobID, ownerID)
	if err != nil {
		return nil, err
	}

	return &StatusResponse{
		JobID:            job.JobID,
		BlobStorage:      job.BlobStorageStatus,
		ScriptExtraction: job.ScriptExtractionStatus,
		ImageExtraction:  job.ImageExtractionStatus,
		JobStatus:        job.JobStatus,
		ErrorMessage:     job.ErrorMessage,
	}, nil
}

// GetSlides - 추출된 슬라이드 조회 (ingestion 완료 후에만 유효)
func (s *Service) GetSlides(jobID, ownerID string) (*SlidesResponse, error) {
	job, err := s.fetchOwned(jobID, ownerID)
	if err != nil {
		return nil, err
	}

	if job.JobStatus != model.StatusCompleted {
		return nil, fmt.Errorf("%w: ingestion job %s is %s", model.ErrConflict, jobID, job.JobStatus)
	}

	return &SlidesResponse{JobID: job.JobID, Slides: job.Slides}, nil
}

// Delete - Ingestion Job 삭제 (tombstone + cascade)
// 종속된 Video Job들도 함께 취소된다
func (s *Service) Delete(ctx context.Context, jobID, ownerID string) error {
	if _, err := s.fetchOwned(jobID, ownerID); err != nil {
		return err
	}

	// 취소 플래그 먼저 - in-flight 워커가 결과 쓰기를 버리도록
	if err := redisutil.SetJobCancelled(s.redis, jobID); err != nil {
		log.Printf("⚠️ Failed to set cancel flag for %s: %v", jobID, err)
	}

	if err := s.db.TombstoneIngestionJob(ctx, jobID); err != nil {
		return err
	}

	// cascade: 종속 Video Job들 취소
	videoJobs, err := s.db.FetchVideoJobsByIngestion(jobID)
	if err != nil {
		log.Printf("⚠️ Failed to fetch dependent video jobs for %s: %v", jobID, err)
		return nil
	}
	for _, vj := range videoJobs {
		if model.IsTerminal(vj.JobStatus) && vj.JobStatus != model.StatusCompleted {
			continue
		}
		if err := redisutil.SetJobCancelled(s.redis, vj.VideoID); err != nil {
			log.Printf("⚠️ Failed to set cancel flag for video %s: %v", vj.VideoID, err)
		}
		if err := s.db.TombstoneVideoJob(ctx, vj.VideoID); err != nil {
			log.Printf("⚠️ Failed to tombstone video job %s: %v", vj.VideoID, err)
		}
	}

	log.Printf("🗑️  Ingestion job %s deleted (cascaded %d video jobs)", jobID, len(videoJobs))
	return nil
}

// fetchOwned - 소유자 검증 포함 조회
func (s *Service) fetchOwned(jobID, ownerID string) (*model.IngestionJob, error) {
	job, err := s.db.FetchIngestionJob(jobID)
	if err != nil {
		return nil, err
	}
	if job.OwnerID != ownerID {
		return nil, model.ErrUnauthorized
	}
	return job, nil
}
