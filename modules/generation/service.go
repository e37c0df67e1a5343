package generation

import (
	"context"
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
)

type Service struct {
	db      *database.Client
	storage *storage.Client
	redis   *goredis.Client
	notify  *notify.Publisher
}

// NewService - Generation 서비스 생성
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

// IsJobCancelled - Video job 취소 여부 확인
func (s *Service) IsJobCancelled(videoID string) bool {
	if s.redis == nil {
		return false
	}
	return redisutil.IsJobCancelled(s.redis, videoID)
}

// UpdateJobStatus - cancel 패키지의 StatusUpdater 구현
func (s *Service) UpdateJobStatus(ctx context.Context, videoID string, status string) error {
	if status == model.StatusUserCancelled {
		return s.db.TombstoneVideoJob(ctx, videoID)
	}
	return s.db.UpdateVideoJobStatus(ctx, videoID, status)
}

// CreateVideo - 비디오 생성 작업 등록 후 큐에 투입
// 추출이 완료된 ingestion job에 대해서만 허용한다
func (s *Service) CreateVideo(ctx context.Context, req *CreateVideoRequest, ownerID string) (string, error) {
	ingestion, err := s.db.FetchIngestionJob(req.IngestionJobID)
	if err != nil {
		return "", err
	}
	if ingestion.OwnerID != ownerID {
		return "", model.ErrUnauthorized
	}
	if ingestion.JobStatus != model.StatusCompleted {
		return "", fmt.Errorf("%w: ingestion job is %s, slides not ready", model.ErrConflict, ingestion.JobStatus)
	}

	if err := model.ValidateSlideConfigs(req.SlideConfigs, ingestion.Slides); err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrInvalidFormat, err)
	}

	cfg := config.GetConfig()
	configs := make([]model.SlideGenerationConfig, len(req.SlideConfigs))
	for i, sc := range req.SlideConfigs {
		if err := sc.Avatar.Validate(); err != nil {
			return "", fmt.Errorf("%w: slide %d: %v", model.ErrInvalidFormat, sc.Index, err)
		}
		// 너무 긴 스크립트는 거부하지 않고 조용히 잘라낸다
		sc.Script = model.TruncateScript(sc.Script, cfg.ScriptMaxLen)
		configs[i] = sc
	}

	videoID := uuid.New().String()
	job := &model.VideoJob{
		VideoID:         videoID,
		IngestionJobID:  req.IngestionJobID,
		OwnerID:         ownerID,
		Language:        req.Language,
		SlideConfigs:    configs,
		TotalSlideCount: len(configs),
		JobStatus:       model.StatusPending,
	}
	if err := s.db.CreateVideoJob(ctx, job); err != nil {
		return "", fmt.Errorf("failed to create video job: %w", err)
	}

	if err := s.redis.LPush(ctx, redisutil.VideoQueue, videoID).Err(); err != nil {
		log.Printf("❌ Failed to enqueue video job %s: %v", videoID, err)
		if dbErr := s.db.SetVideoJobError(ctx, videoID, "failed to enqueue for processing"); dbErr != nil {
			log.Printf("⚠️ Failed to mark video job failed: %v", dbErr)
		}
		return videoID, nil
	}

	log.Printf("✅ Video job created and enqueued: %s (%d slides)", videoID, len(configs))
	return videoID, nil
}

// GetStatus - 비디오 작업 진행 상태 조회
func (s *Service) GetStatus(videoID, ownerID string) (*VideoStatusResponse, error) {
	job, err := s.fetchOwned(videoID, ownerID)
	if err != nil {
		return nil, err
	}

	return &VideoStatusResponse{
		VideoID:             job.VideoID,
		IngestionJobID:      job.IngestionJobID,
		JobStatus:           job.JobStatus,
		CompletedSlideCount: job.CompletedSlideCount(),
		TotalSlideCount:     job.TotalSlideCount,
		FailedSlides:        job.FailedSlides,
		FinalVideoRef:       job.FinalVideoRef,
		ErrorMessage:        job.ErrorMessage,
	}, nil
}

// ApplyDefaultConfig - 모든 슬라이드 config를 한 번의 쓰기로 교체
// worker가 집어간 뒤에는 수정할 수 없다 (pending 한정)
func (s *Service) ApplyDefaultConfig(ctx context.Context, videoID, ownerID string, avatarCfg model.AvatarConfig) error {
	if err := avatarCfg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", model.ErrInvalidFormat, err)
	}

	job, err := s.fetchOwned(videoID, ownerID)
	if err != nil {
		return err
	}
	if job.JobStatus != model.StatusPending {
		return fmt.Errorf("%w: video job is %s, configs are frozen", model.ErrConflict, job.JobStatus)
	}

	configs := make([]model.SlideGenerationConfig, len(job.SlideConfigs))
	for i, sc := range job.SlideConfigs {
		sc.Avatar = avatarCfg
		configs[i] = sc
	}

	if err := s.db.ReplaceSlideConfigs(ctx, videoID, configs); err != nil {
		return fmt.Errorf("failed to replace slide configs: %w", err)
	}
	log.Printf("✅ Applied default avatar config to %d slides of %s", len(configs), videoID)
	return nil
}

// Delete - 비디오 작업 취소 및 삭제
func (s *Service) Delete(ctx context.Context, videoID, ownerID string) error {
	if _, err := s.fetchOwned(videoID, ownerID); err != nil {
		return err
	}

	// worker가 결과를 쓰기 전에 플래그부터 세운다
	if err := redisutil.SetJobCancelled(s.redis, videoID); err != nil {
		log.Printf("⚠️ Failed to set cancel flag for %s: %v", videoID, err)
	}

	if err := s.db.TombstoneVideoJob(ctx, videoID); err != nil {
		return fmt.Errorf("failed to tombstone video job: %w", err)
	}

	log.Printf("🛑 Video job cancelled: %s", videoID)
	return nil
}

func (s *Service) fetchOwned(videoID, ownerID string) (*model.VideoJob, error) {
	job, err := s.db.FetchVideoJob(videoID)
	if err != nil {
		return nil, err
	}
	if job.OwnerID != ownerID {
		return nil, model.ErrUnauthorized
	}
	return job, nil
}

// publishProgress - 슬라이드 단위 진행 이벤트 발행
func (s *Service) publishProgress(ctx context.Context, videoID string, completed, total int, changed bool, status string) {
	if s.notify == nil {
		return
	}
	s.notify.Publish(ctx, videoID, model.ProgressEvent{
		VideoID:             videoID,
		CompletedSlideCount: completed,
		TotalSlideCount:     total,
		Changed:             changed,
		Status:              status,
	})
}
