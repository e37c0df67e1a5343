package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"slidecast-server/modules/common/cancel"
	"slidecast-server/modules/common/config"
	"slidecast-server/modules/common/gemini"
	"slidecast-server/modules/common/model"
	redisutil "slidecast-server/modules/common/redis"
	"slidecast-server/modules/common/utils"
	"slidecast-server/modules/generation/avatar"
	"slidecast-server/modules/generation/composite"
)

// ProcessVideoJob - 비디오 생성 파이프라인 전체 실행
// 슬라이드별 synthesis→composite는 세마포어 한도 내에서 완전 병렬,
// 유일한 직렬화 지점은 마지막 concat이다
func ProcessVideoJob(ctx context.Context, service *Service, videoID string) {
	log.Printf("🚀 Processing video job: %s", videoID)

	if cancel.CheckBeforeDispatch(service, videoID, "video generation") {
		return
	}

	job, err := service.db.FetchVideoJob(videoID)
	if err != nil {
		log.Printf("❌ Failed to fetch video job %s: %v", videoID, err)
		return
	}

	// 큐 중복 전달 방어 - pending이 아니면 이미 집어갔거나 끝난 작업
	if job.JobStatus != model.StatusPending {
		log.Printf("⚠️ Video job %s is %s, skipping", videoID, job.JobStatus)
		return
	}

	ingestion, err := service.db.FetchIngestionJob(job.IngestionJobID)
	if err != nil {
		log.Printf("❌ Failed to fetch source ingestion job: %v", err)
		failVideoJob(ctx, service, videoID, "source presentation no longer available")
		return
	}

	if err := service.db.UpdateVideoJobStatus(ctx, videoID, model.StatusProcessing); err != nil {
		log.Printf("⚠️ Failed to mark video job processing: %v", err)
	}
	service.publishProgress(ctx, videoID, job.CompletedSlideCount(), job.TotalSlideCount, false, model.StatusProcessing)

	cfg := config.GetConfig()
	workDir, err := os.MkdirTemp(cfg.WorkDir, "video-"+videoID+"-")
	if err != nil {
		log.Printf("❌ Failed to create work dir: %v", err)
		failVideoJob(ctx, service, videoID, "failed to allocate scratch space")
		return
	}
	defer os.RemoveAll(workDir)

	imageRefs := make(map[int]*string, len(ingestion.Slides))
	for _, slide := range ingestion.Slides {
		imageRefs[slide.Index] = slide.ImageRef
	}

	comp := composite.NewCompositor()
	avatarClient := avatar.NewClient()

	// 진행 이벤트 기반 concat watcher - 다른 워커 프로세스가 완료시킨
	// 슬라이드도 이벤트로 보이므로 여기서 합류한다
	events, unsubscribe := service.notify.Subscribe(ctx, videoID)
	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		watchProgress(events, func() {
			tryFinalize(ctx, service, comp, videoID, workDir)
		})
	}()

	// 슬라이드 팬아웃 (세마포어 한도 내 병렬)
	var wg sync.WaitGroup
	sem := make(chan struct{}, cfg.MaxConcurrentSlides)

	for _, sc := range job.SlideConfigs {
		// 재투입된 작업이면 이미 합성된 슬라이드는 건너뛴다
		if _, done := job.ClipRefs[strconv.Itoa(sc.Index)]; done {
			continue
		}

		wg.Add(1)
		go func(sc model.SlideGenerationConfig) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if cancel.CheckBeforeDispatch(service, videoID, fmt.Sprintf("slide %d", sc.Index)) {
				return
			}

			if err := processSlide(ctx, service, comp, avatarClient, job, sc, imageRefs[sc.Index], workDir); err != nil {
				log.Printf("❌ Slide %d of %s failed: %v", sc.Index, videoID, err)
				recordSlideFailure(ctx, service, videoID, sc.Index, err)
			}
		}(sc)
	}

	wg.Wait()

	// 이벤트는 유실될 수 있으므로 마지막에 한 번 더 직접 확인한다
	tryFinalize(ctx, service, comp, videoID, workDir)

	// watcher가 concat을 집어간 경우 끝날 때까지 기다린다
	// (구독 해제로 이벤트 채널이 닫히면 goroutine이 종료된다)
	unsubscribe()
	<-watcherDone
	log.Printf("✅ Video job %s worker finished", videoID)
}

// watchProgress - 진행 이벤트 스트림을 소비하며 확정 시점마다 finalize를 호출한다
// 이벤트 채널이 닫힌 뒤, 진행 중이던 finalize까지 끝나야 반환한다
func watchProgress(events <-chan []byte, finalize func()) {
	for payload := range events {
		var ev model.ProgressEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			continue
		}
		if ev.Changed || ev.Status == model.StatusFailed {
			finalize()
		}
	}
}

// processSlide - 슬라이드 하나의 synthesis → composite → 기록
func processSlide(ctx context.Context, service *Service, comp *composite.Compositor, avatarClient *avatar.Client, job *model.VideoJob, sc model.SlideGenerationConfig, imageRef *string, workDir string) error {
	if imageRef == nil {
		return fmt.Errorf("no slide image extracted")
	}

	script := sc.Script
	cfg := config.GetConfig()
	if cfg.TranslateScripts && job.Language != "" && script != "" {
		translated, err := gemini.TranslateScript(ctx, cfg.GeminiAPIKeys, cfg.GeminiModel, script, job.Language)
		if err != nil {
			// 번역 실패는 원문으로 진행한다
			log.Printf("⚠️ Slide %d: translation failed, using original script: %v", sc.Index, err)
		} else {
			script = model.TruncateScript(translated, cfg.ScriptMaxLen)
		}
	}

	// 빈 스크립트도 엔진에 그대로 넘긴다 (무음/최소 클립)
	clip, err := avatarClient.Synthesize(ctx, script, string(sc.Avatar.Persona), job.Language)
	if err != nil {
		return err
	}

	clipData, err := avatarClient.Download(ctx, clip.URL)
	if err != nil {
		return fmt.Errorf("failed to download avatar clip: %w", err)
	}
	clipPath := filepath.Join(workDir, fmt.Sprintf("clip-%d.mp4", sc.Index))
	if err := os.WriteFile(clipPath, clipData, 0o644); err != nil {
		return fmt.Errorf("failed to stage avatar clip: %w", err)
	}

	imageData, err := service.storage.Download(ctx, *imageRef)
	if err != nil {
		return fmt.Errorf("failed to download slide image: %w", err)
	}
	pngData, err := utils.ConvertToPNG(imageData)
	if err != nil {
		return fmt.Errorf("failed to convert slide image: %w", err)
	}
	imagePath := filepath.Join(workDir, fmt.Sprintf("slide-%d.png", sc.Index))
	if err := os.WriteFile(imagePath, pngData, 0o644); err != nil {
		return fmt.Errorf("failed to stage slide image: %w", err)
	}

	clipDuration := clip.DurationSeconds
	if clipDuration <= 0 {
		clipDuration, err = comp.ProbeDuration(ctx, clipPath)
		if err != nil {
			return fmt.Errorf("failed to probe clip duration: %w", err)
		}
	}

	segmentPath := filepath.Join(workDir, fmt.Sprintf("segment-%d.mp4", sc.Index))
	if err := comp.Composite(ctx, imagePath, clipPath, segmentPath, sc.Avatar, clipDuration); err != nil {
		return err
	}

	segmentData, err := os.ReadFile(segmentPath)
	if err != nil {
		return fmt.Errorf("failed to read composited segment: %w", err)
	}
	ref, err := service.storage.UploadClip(ctx, segmentData, job.VideoID, sc.Index)
	if err != nil {
		return fmt.Errorf("failed to upload composited clip: %w", err)
	}

	// 취소된 작업의 결과는 버린다
	if cancel.CheckBeforeWrite(ctx, service, job.VideoID, fmt.Sprintf("slide %d", sc.Index)) {
		return nil
	}

	completed, total, changed, err := service.db.RecordSlideClip(ctx, job.VideoID, sc.Index, ref)
	if err != nil {
		return fmt.Errorf("failed to record composited clip: %w", err)
	}

	log.Printf("✅ Slide %d of %s composited (%d/%d)", sc.Index, job.VideoID, completed, total)
	service.publishProgress(ctx, job.VideoID, completed, total, changed, "")
	return nil
}

// recordSlideFailure - 슬라이드 단위 실패 기록 (형제 슬라이드는 계속 진행)
func recordSlideFailure(ctx context.Context, service *Service, videoID string, index int, cause error) {
	if cancel.CheckBeforeWrite(ctx, service, videoID, fmt.Sprintf("slide %d failure", index)) {
		return
	}
	if err := service.db.RecordSlideFailure(ctx, videoID, index, cause.Error()); err != nil {
		log.Printf("⚠️ Failed to record slide failure: %v", err)
		return
	}
	// watcher가 실패 확정 판단을 할 수 있도록 이벤트를 깨운다
	service.publishProgress(ctx, videoID, 0, 0, false, model.StatusFailed)
}

// tryFinalize - 모든 슬라이드가 끝났으면 concat 또는 실패 확정
// SETNX 락으로 이벤트 중복 전달에도 한 번만 실행된다
func tryFinalize(ctx context.Context, service *Service, comp *composite.Compositor, videoID, workDir string) {
	job, err := service.db.FetchVideoJob(videoID)
	if err != nil {
		log.Printf("⚠️ Finalize check failed to fetch %s: %v", videoID, err)
		return
	}
	if model.IsTerminal(job.JobStatus) {
		return
	}

	completed := job.CompletedSlideCount()
	failed := len(job.FailedSlides)

	// 실패한 슬라이드가 있으면 부분 concat 없이 실패 확정
	if failed > 0 && completed+failed >= job.TotalSlideCount {
		if cancel.HandleFinalStatus(ctx, service, videoID) {
			return
		}
		if err := service.db.UpdateVideoJobStatus(ctx, videoID, model.StatusFailed); err != nil {
			log.Printf("⚠️ Failed to mark video job failed: %v", err)
			return
		}
		service.publishProgress(ctx, videoID, completed, job.TotalSlideCount, false, model.StatusFailed)
		log.Printf("❌ Video job %s failed: %d slide(s) failed", videoID, failed)
		return
	}

	if completed < job.TotalSlideCount {
		return
	}

	acquired, err := redisutil.AcquireConcatLock(ctx, service.redis, videoID)
	if err != nil {
		log.Printf("⚠️ Failed to acquire concat lock for %s: %v", videoID, err)
		return
	}
	if !acquired {
		return
	}

	if err := concatAndPublish(ctx, service, comp, job, workDir); err != nil {
		log.Printf("❌ Concat failed for %s: %v", videoID, err)
		failVideoJob(ctx, service, videoID, fmt.Sprintf("final concatenation failed: %v", err))
		// 실패 시 락을 풀어 재시도 여지를 남긴다
		redisutil.ReleaseConcatLock(ctx, service.redis, videoID)
	}
}

// concatAndPublish - index 순서대로 세그먼트를 이어붙여 최종 비디오 업로드
func concatAndPublish(ctx context.Context, service *Service, comp *composite.Compositor, job *model.VideoJob, workDir string) error {
	// 완료 순서와 무관하게 출력 순서는 항상 slide index 순이다
	refs, err := model.OrderedClipRefs(job.ClipRefs, job.TotalSlideCount)
	if err != nil {
		return err
	}

	segmentPaths := make([]string, 0, len(refs))
	for i, ref := range refs {
		data, err := service.storage.Download(ctx, ref)
		if err != nil {
			return fmt.Errorf("failed to download segment %d: %w", i, err)
		}
		p := filepath.Join(workDir, fmt.Sprintf("final-segment-%d.mp4", i))
		if err := os.WriteFile(p, data, 0o644); err != nil {
			return fmt.Errorf("failed to stage segment %d: %w", i, err)
		}
		segmentPaths = append(segmentPaths, p)
	}

	finalPath := filepath.Join(workDir, "final.mp4")
	if err := comp.Concat(ctx, segmentPaths, finalPath); err != nil {
		return err
	}

	finalData, err := os.ReadFile(finalPath)
	if err != nil {
		return fmt.Errorf("failed to read final video: %w", err)
	}
	finalRef, err := service.storage.UploadFinalVideo(ctx, finalData, job.VideoID)
	if err != nil {
		return fmt.Errorf("failed to upload final video: %w", err)
	}

	if cancel.CheckBeforeWrite(ctx, service, job.VideoID, "final video") {
		return nil
	}

	if err := service.db.SetFinalVideoRef(ctx, job.VideoID, finalRef); err != nil {
		return fmt.Errorf("failed to record final video: %w", err)
	}

	service.publishProgress(ctx, job.VideoID, job.TotalSlideCount, job.TotalSlideCount, false, model.StatusCompleted)
	log.Printf("🎉 Video job %s completed: %s", job.VideoID, finalRef)
	return nil
}

func failVideoJob(ctx context.Context, service *Service, videoID, detail string) {
	if err := service.db.SetVideoJobError(ctx, videoID, detail); err != nil {
		log.Printf("⚠️ Failed to mark video job %s failed: %v", videoID, err)
	}
	service.publishProgress(ctx, videoID, 0, 0, false, model.StatusFailed)
}
