package ingestion

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"slidecast-server/modules/common/model"
)

// 50MB - PPTX 업로드 최대 크기
const maxUploadBytes = 50 << 20

type IngestionHandler struct {
	service *Service
}

func NewIngestionHandler() *IngestionHandler {
	return &IngestionHandler{
		service: NewService(),
	}
}

// RegisterRoutes - 라우터에 Ingestion 엔드포인트 등록
func (h *IngestionHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/ingestion", h.SubmitPresentation).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/ingestion/{jobId}", h.GetJobStatus).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/ingestion/{jobId}/slides", h.GetSlides).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/ingestion/{jobId}", h.DeleteJob).Methods("DELETE", "OPTIONS")
	log.Println("✅ Ingestion routes registered: /api/ingestion")
}

// SubmitPresentation - PPTX 업로드 후 추출 파이프라인 시작
func (h *IngestionHandler) SubmitPresentation(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	ownerID := ownerFromRequest(r)
	if ownerID == "" {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"error": "Missing owner id (X-Owner-ID header or owner_id field)",
		})
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		log.Printf("❌ Failed to parse multipart form: %v", err)
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"error": "Invalid multipart form",
		})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"error": "Missing file field",
		})
		return
	}
	defer file.Close()

	fileData, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		log.Printf("❌ Failed to read upload: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{
			"error": "Failed to read upload",
		})
		return
	}
	if len(fileData) > maxUploadBytes {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		json.NewEncoder(w).Encode(map[string]string{
			"error": "File too large",
		})
		return
	}

	log.Printf("📤 Presentation upload: owner=%s file=%s size=%d", ownerID, header.Filename, len(fileData))

	jobID, err := h.service.SubmitIngestion(r.Context(), fileData, ownerID)
	if err != nil {
		writeServiceError(w, err, "Failed to submit presentation")
		return
	}

	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(SubmitResponse{JobID: jobID})
}

// GetJobStatus - 추출 단계별 상태 조회
func (h *IngestionHandler) GetJobStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	vars := mux.Vars(r)
	jobID := vars["jobId"]
	ownerID := ownerFromRequest(r)

	status, err := h.service.GetStatus(jobID, ownerID)
	if err != nil {
		writeServiceError(w, err, "Failed to fetch job status")
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(status)
}

// GetSlides - 추출 완료된 슬라이드 아티팩트 목록 조회
func (h *IngestionHandler) GetSlides(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	vars := mux.Vars(r)
	jobID := vars["jobId"]
	ownerID := ownerFromRequest(r)

	slides, err := h.service.GetSlides(jobID, ownerID)
	if err != nil {
		writeServiceError(w, err, "Failed to fetch slides")
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(slides)
}

// DeleteJob - 추출 작업 취소 및 삭제 (파생 비디오 작업도 같이 취소)
func (h *IngestionHandler) DeleteJob(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	vars := mux.Vars(r)
	jobID := vars["jobId"]
	ownerID := ownerFromRequest(r)

	if err := h.service.Delete(r.Context(), jobID, ownerID); err != nil {
		writeServiceError(w, err, "Failed to delete job")
		return
	}

	log.Printf("🛑 Ingestion job deleted: %s", jobID)
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"jobId":  jobID,
		"status": model.StatusUserCancelled,
	})
}

func ownerFromRequest(r *http.Request) string {
	if owner := r.Header.Get("X-Owner-ID"); owner != "" {
		return owner
	}
	if owner := r.FormValue("owner_id"); owner != "" {
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
