package ingestion

import (
	"context"
	"fmt"
	"log"

	"slidecast-server/modules/common/cancel"
	"slidecast-server/modules/common/model"
	"slidecast-server/modules/common/utils"
	"slidecast-server/modules/ingestion/extract"
)

// ProcessExtraction - Extractor 메시지 하나 처리
// 두 Extractor는 독립 메시지로 팬아웃되므로 서로를 기다리지 않고 병렬로 돈다
func ProcessExtraction(ctx context.Context, service *Service, msg ExtractMessage) {
	log.Printf("🚀 Processing %s for job: %s", msg.ProcessingType, msg.JobID)

	if cancel.CheckBeforeDispatch(service, msg.JobID, msg.ProcessingType) {
		return
	}

	job, err := service.db.FetchIngestionJob(msg.JobID)
	if err != nil {
		log.Printf("❌ Failed to fetch ingestion job %s: %v", msg.JobID, err)
		return
	}

	if job.JobStatus == model.StatusUserCancelled {
		log.Printf("🛑 Ingestion job %s is cancelled, skipping %s", msg.JobID, msg.ProcessingType)
		return
	}

	// 큐 중복 전달 방어 - 이미 끝난 단계를 processing으로 되돌리지 않는다
	if staleRedelivery(job, msg.ProcessingType) {
		log.Printf("🔁 %s already %s for job %s, skipping redelivery",
			msg.ProcessingType, job.StageStatus(msg.ProcessingType), msg.JobID)
		return
	}

	if job.SourceFileRef == nil {
		service.failStage(ctx, msg.JobID, msg.ProcessingType, "source file ref missing")
		return
	}

	// 단계 시작
	if _, err := service.db.UpdateIngestionStage(ctx, msg.JobID, msg.ProcessingType, model.StatusProcessing, ""); err != nil {
		log.Printf("⚠️ Failed to mark %s processing: %v", msg.ProcessingType, err)
	}
	service.publishStageEvent(ctx, msg.JobID, msg.ProcessingType, model.StatusProcessing, "")

	// 원본 deck 다운로드
	deckData, err := service.storage.Download(ctx, *job.SourceFileRef)
	if err != nil {
		service.failStage(ctx, msg.JobID, msg.ProcessingType, fmt.Sprintf("deck download failed: %v", err))
		return
	}

	// 컨테이너를 아예 못 열면 stage 전체 실패 (치명적)
	deck, err := extract.OpenDeck(deckData)
	if err != nil {
		service.failStage(ctx, msg.JobID, msg.ProcessingType, fmt.Sprintf("cannot parse presentation: %v", err))
		return
	}

	var partial []model.SlideArtifact
	switch msg.ProcessingType {
	case model.ProcessingImageExtraction:
		partial = extractImages(ctx, service, deck, msg.JobID)
	case model.ProcessingScriptExtraction:
		partial = extractScripts(deck, msg.JobID)
	default:
		log.Printf("⚠️  Unknown processing type: %s", msg.ProcessingType)
		return
	}

	// 결과 쓰기 직전 취소 체크 - 삭제된 job을 되살리지 않는다
	if cancel.CheckBeforeWrite(ctx, service, msg.JobID, msg.ProcessingType) {
		return
	}

	// index 기준 원자적 병합 - 형제 Extractor가 채운 필드는 보존된다
	if err := service.db.MergeSlideArtifacts(ctx, msg.JobID, partial); err != nil {
		service.failStage(ctx, msg.JobID, msg.ProcessingType, fmt.Sprintf("failed to store artifacts: %v", err))
		return
	}

	service.completeStage(ctx, msg.JobID, msg.ProcessingType)
	log.Printf("✅ %s completed for job %s (%d slides)", msg.ProcessingType, msg.JobID, deck.SlideCount())
}

// staleRedelivery - 해당 단계가 이미 terminal이면 재전달된 메시지다
func staleRedelivery(job *model.IngestionJob, processingType string) bool {
	return model.IsTerminal(job.StageStatus(processingType))
}

// extractImages - 슬라이드별 대표 이미지 추출 → WebP 변환 → 업로드
// 슬라이드 하나의 실패는 비치명적: 해당 index의 image_ref만 absent로 남긴다
// 모든 index에 대해 partial을 만들어 0..N-1 연속 invariant를 유지한다
func extractImages(ctx context.Context, service *Service, deck *extract.Deck, jobID string) []model.SlideArtifact {
	partial := make([]model.SlideArtifact, 0, deck.SlideCount())

	for i := 0; i < deck.SlideCount(); i++ {
		artifact := model.SlideArtifact{Index: i}

		imageData, err := deck.SlideImage(i)
		if err != nil || imageData == nil {
			if err != nil {
				log.Printf("⚠️ Slide %d: image extraction failed (non-fatal): %v", i, err)
			} else {
				log.Printf("🔍 Slide %d: no image available", i)
			}
			partial = append(partial, artifact)
			continue
		}

		webpData, err := utils.ConvertToWebP(imageData, 80.0)
		if err != nil {
			log.Printf("⚠️ Slide %d: WebP conversion failed (non-fatal): %v", i, err)
			partial = append(partial, artifact)
			continue
		}

		ref, err := service.storage.UploadSlideImage(ctx, webpData, jobID, i)
		if err != nil {
			log.Printf("⚠️ Slide %d: image upload failed (non-fatal): %v", i, err)
			partial = append(partial, artifact)
			continue
		}

		artifact.ImageRef = &ref
		partial = append(partial, artifact)
	}

	return partial
}

// extractScripts - 슬라이드별 발표자 노트 추출
// 노트 없는 슬라이드는 script absent로 남긴다
func extractScripts(deck *extract.Deck, jobID string) []model.SlideArtifact {
	partial := make([]model.SlideArtifact, 0, deck.SlideCount())

	for i := 0; i < deck.SlideCount(); i++ {
		artifact := model.SlideArtifact{Index: i}

		notes, err := deck.SlideNotes(i)
		if err != nil {
			log.Printf("⚠️ Slide %d: notes extraction failed (non-fatal): %v", i, err)
		} else if notes != "" {
			artifact.Script = &notes
		}

		partial = append(partial, artifact)
	}

	return partial
}
