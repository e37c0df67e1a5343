package generation

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"slidecast-server/modules/common/model"
)

type GenerationHandler struct {
	service *Service
}

func NewGenerationHandler() *GenerationHandler {
	return &GenerationHandler{
		service: NewService(),
	}
}

// RegisterRoutes - 라우터에 Generation 엔드포인트 등록
func (h *GenerationHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/generation", h.CreateVideo).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/generation/{videoId}", h.GetJobStatus).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/generation/{videoId}/config/apply-all", h.ApplyDefaultConfig).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/generation/{videoId}", h.DeleteJob).Methods("DELETE", "OPTIONS")
	log.Println("✅ Generation routes registered: /api/generation")
}

// CreateVideo - 비디오 생성 작업 제출 (Redis Queue에 추가)
func (h *GenerationHandler) CreateVideo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	var req CreateVideoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("❌ Failed to parse request: %v", err)
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"error": "Invalid request format",
		})
		return
	}

	ownerID := ownerFromRequest(r)
	if ownerID == "" {
		ownerID = req.OwnerID
	}
	if ownerID == "" {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"error": "Missing owner id (X-Owner-ID header or owner_id field)",
		})
		return
	}

	if req.IngestionJobID == "" {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"error": "Missing required field: ingestion_job_id",
		})
		return
	}

	videoID, err := h.service.CreateVideo(r.Context(), &req, ownerID)
	if err != nil {
		writeServiceError(w, err, "Failed to create video job")
		return
	}

	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(CreateVideoResponse{VideoID: videoID})
}

// GetJobStatus - 비디오 작업 진행 상태 조회
func (h *GenerationHandler) GetJobStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	vars := mux.Vars(r)
	videoID := vars["videoId"]
	ownerID := ownerFromRequest(r)

	status, err := h.service.GetStatus(videoID, ownerID)
	if err != nil {
		writeServiceError(w, err, "Failed to fetch video job")
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(status)
}

// ApplyDefaultConfig - 모든 슬라이드에 동일한 아바타 설정을 한 번에 적용
func (h *GenerationHandler) ApplyDefaultConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	vars := mux.Vars(r)
	videoID := vars["videoId"]
	ownerID := ownerFromRequest(r)

	var req ApplyAllRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"error": "Invalid request format",
		})
		return
	}

	if err := h.service.ApplyDefaultConfig(r.Context(), videoID, ownerID, req.Avatar); err != nil {
		writeServiceError(w, err, "Failed to apply config")
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"videoId": videoID})
}

// DeleteJob - 비디오 작업 취소 및 삭제
func (h *GenerationHandler) DeleteJob(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	vars := mux.Vars(r)
	videoID := vars["videoId"]
	ownerID := ownerFromRequest(r)

	if err := h.service.Delete(r.Context(), videoID, ownerID); err != nil {
		writeServiceError(w, err, "Failed to delete video job")
		return
	}

	log.Printf("🛑 Video job deleted: %s", videoID)
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"videoId": videoID,
		"status":  model.StatusUserCancelled,
	})
}

func ownerFromRequest(r *http.Request) string {
	if owner := r.Header.Get("X-Owner-ID"); owner != "" {
		return owner
	}
	return r.URL.Query().Get("owner_id")
}

// writeServiceError - 서비스 에러를 HTTP 상태로 변환
func writeServiceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, model.ErrInvalidFormat):
		w.WriteHeader(http.StatusBadRequest)
	case errors.Is(err, model.ErrNotFound):
		w.WriteHeader(http.StatusNotFound)
	case errors.Is(err, model.ErrUnauthorized):
		w.WriteHeader(http.StatusForbidden)
	case errors.Is(err, model.ErrConflict):
		w.WriteHeader(http.StatusConflict)
	default:
		log.Printf("❌ %s: %v", fallback, err)
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": fallback})
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
