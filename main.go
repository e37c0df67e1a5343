package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"slidecast-server/modules/common/config"
	"slidecast-server/modules/common/notify"
	redisClient "slidecast-server/modules/common/redis"
	"slidecast-server/modules/generation"
	"slidecast-server/modules/ingestion"
	"slidecast-server/modules/worker"
)

// WebSocket upgrader
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// 개발용 - 모든 origin 허용
		// 프로덕션에서는 특정 도메인만 허용하도록 수정
		return true
	},
}

// 연결된 클라이언트 정보
type Client struct {
	conn  *websocket.Conn
	jobID string
	send  chan []byte
}

// JobWatch - job/video id 하나에 대한 구독자 그룹
// Notification Channel 구독 하나를 여러 websocket 클라이언트가 공유한다
type JobWatch struct {
	jobID        string
	clients      map[*Client]bool
	mutex        sync.RWMutex
	stop         func()
	createdAt    time.Time
	lastActivity time.Time
}

// JobHub - job id별 구독자 그룹 관리
type JobHub struct {
	watches   map[string]*JobWatch
	mutex     sync.RWMutex
	publisher *notify.Publisher
	metrics   *ServerMetrics
}

// 서버 메트릭
type ServerMetrics struct {
	TotalWatches     int       `json:"totalWatches"`
	ActiveWatches    int       `json:"activeWatches"`
	TotalConnections int       `json:"totalConnections"`
	StartTime        time.Time `json:"startTime"`
	mutex            sync.RWMutex
}

var jobHub = &JobHub{
	watches: make(map[string]*JobWatch),
	metrics: &ServerMetrics{
		StartTime: time.Now(),
	},
}

// 구독자 그룹 가져오기 또는 생성
// 새 그룹이면 Notification Channel 구독을 시작하고 수신 이벤트를 팬아웃한다
func (h *JobHub) getOrCreateWatch(jobID string) *JobWatch {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	watch, exists := h.watches[jobID]
	if !exists {
		now := time.Now()
		watch = &JobWatch{
			jobID:        jobID,
			clients:      make(map[*Client]bool),
			createdAt:    now,
			lastActivity: now,
		}

		events, unsubscribe := h.publisher.Subscribe(context.Background(), jobID)
		watch.stop = unsubscribe
		go func() {
			for payload := range events {
				watch.broadcast(payload)
			}
		}()

		h.watches[jobID] = watch

		h.metrics.mutex.Lock()
		h.metrics.TotalWatches++
		h.metrics.ActiveWatches++
		h.metrics.mutex.Unlock()

		log.Printf("✅ Created watch for job: %s (Total: %d, Active: %d)",
			jobID, h.metrics.TotalWatches, h.metrics.ActiveWatches)
	}

	// lastActivity는 watch.mutex가 보호한다 (cleanup 루틴과 경합)
	watch.mutex.Lock()
	watch.lastActivity = time.Now()
	watch.mutex.Unlock()
	return watch
}

// broadcast - 그룹의 모든 클라이언트에게 이벤트 전달
func (w *JobWatch) broadcast(payload []byte) {
	w.mutex.RLock()
	defer w.mutex.RUnlock()

	for client := range w.clients {
		select {
		case client.send <- payload:
		default:
			// 느린 클라이언트는 이벤트를 버린다 - 재접속 시 상태 재조회로 복구
			log.Printf("⚠️ Dropping event for slow client on job %s", w.jobID)
		}
	}
}

// 클라이언트를 그룹에 추가
func (w *JobWatch) addClient(client *Client) {
	w.mutex.Lock()
	w.clients[client] = true
	w.lastActivity = time.Now()
	clientCount := len(w.clients)
	w.mutex.Unlock()

	jobHub.metrics.mutex.Lock()
	jobHub.metrics.TotalConnections++
	jobHub.metrics.mutex.Unlock()

	log.Printf("👤 Client watching job %s (Clients: %d, Total Connections: %d)",
		w.jobID, clientCount, jobHub.metrics.TotalConnections)
}

// 클라이언트를 그룹에서 제거
func (w *JobWatch) removeClient(client *Client) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if _, exists := w.clients[client]; exists {
		close(client.send)
		delete(w.clients, client)
		w.lastActivity = time.Now()

		log.Printf("👋 Client left job %s (Remaining: %d)", w.jobID, len(w.clients))

		if len(w.clients) == 0 {
			log.Printf("🗑️  Watch for job %s is now empty, will be cleaned up", w.jobID)
		}
	}
}

// 빈 구독자 그룹 정리 (Redis 구독도 해제)
func (h *JobHub) cleanupEmptyWatches() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	cleaned := 0
	for jobID, watch := range h.watches {
		watch.mutex.RLock()
		isEmpty := len(watch.clients) == 0
		watch.mutex.RUnlock()

		if isEmpty {
			watch.stop()
			delete(h.watches, jobID)
			cleaned++

			h.metrics.mutex.Lock()
			h.metrics.ActiveWatches--
			h.metrics.mutex.Unlock()

			log.Printf("🧹 Cleaned up empty watch: %s", jobID)
		}
	}

	if cleaned > 0 {
		log.Printf("🗑️  Cleaned up %d empty watches (Active: %d)", cleaned, h.metrics.ActiveWatches)
	}
}

// 만료된 구독자 그룹 정리 (파이프라인은 길어야 수십 분이다)
func (h *JobHub) cleanupExpiredWatches() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	now := time.Now()
	expiredThreshold := 24 * time.Hour
	inactiveThreshold := 2 * time.Hour

	cleaned := 0
	for jobID, watch := range h.watches {
		watch.mutex.RLock()
		isExpired := now.Sub(watch.createdAt) > expiredThreshold
		isInactive := now.Sub(watch.lastActivity) > inactiveThreshold && len(watch.clients) == 0
		watch.mutex.RUnlock()

		if isExpired || isInactive {
			watch.mutex.Lock()
			for client := range watch.clients {
				close(client.send)
				log.Printf("🔌 Disconnecting client from expired watch %s", jobID)
			}
			watch.mutex.Unlock()

			watch.stop()
			delete(h.watches, jobID)
			cleaned++

			h.metrics.mutex.Lock()
			h.metrics.ActiveWatches--
			h.metrics.mutex.Unlock()

			reason := "expired"
			if isInactive {
				reason = "inactive"
			}
			log.Printf("⏰ Cleaned up %s watch: %s (Age: %v)", reason, jobID, now.Sub(watch.createdAt))
		}
	}

	if cleaned > 0 {
		log.Printf("🧼 Cleaned up %d expired/inactive watches (Active: %d)", cleaned, h.metrics.ActiveWatches)
	}
}

// 정기적 정리 작업 시작
func (h *JobHub) startCleanupRoutine() {
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()

		for range ticker.C {
			h.cleanupEmptyWatches()
		}
	}()

	go func() {
		ticker := time.NewTicker(30 * time.Minute)
		defer ticker.Stop()

		for range ticker.C {
			h.cleanupExpiredWatches()
		}
	}()

	log.Printf("🔄 Started watch cleanup routines (Empty: 5min, Expired: 30min)")
}

// WebSocket 핸들러 - job/video id별 진행 이벤트 스트림
func handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	jobID := r.URL.Query().Get("job")
	if jobID == "" {
		log.Printf("Missing job parameter")
		conn.Close()
		return
	}

	client := &Client{
		conn:  conn,
		jobID: jobID,
		send:  make(chan []byte, 256),
	}

	log.Printf("🔍 New WebSocket connection - Job: %s", jobID)

	watch := jobHub.getOrCreateWatch(jobID)
	watch.addClient(client)

	go client.writePump()
	go client.readPump(watch)
}

// 클라이언트로부터 읽기 - 이벤트 스트림은 단방향이라 닫힘 감지용이다
func (c *Client) readPump(watch *JobWatch) {
	defer func() {
		watch.removeClient(c)
		c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}
	}
}

// 클라이언트로 메시지 쓰기
func (c *Client) writePump() {
	defer c.conn.Close()

	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			log.Printf("WebSocket write error: %v", err)
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// CORS 헤더 추가
func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Owner-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// 헬스 체크 엔드포인트
func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "slidecast-server",
	})
}

// 서버 메트릭 조회 엔드포인트
func getMetrics(w http.ResponseWriter, r *http.Request) {
	jobHub.metrics.mutex.RLock()
	metrics := *jobHub.metrics
	jobHub.metrics.mutex.RUnlock()

	uptime := time.Since(metrics.StartTime)

	jobHub.mutex.RLock()
	watchDetails := make([]map[string]interface{}, 0, len(jobHub.watches))
	totalClients := 0

	for jobID, watch := range jobHub.watches {
		watch.mutex.RLock()
		clientCount := len(watch.clients)
		totalClients += clientCount

		watchDetails = append(watchDetails, map[string]interface{}{
			"jobId":        jobID,
			"clientCount":  clientCount,
			"createdAt":    watch.createdAt,
			"lastActivity": watch.lastActivity,
			"age":          time.Since(watch.createdAt).String(),
			"inactive":     time.Since(watch.lastActivity).String(),
		})
		watch.mutex.RUnlock()
	}
	jobHub.mutex.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"server": map[string]interface{}{
			"uptime":           uptime.String(),
			"startTime":        metrics.StartTime,
			"totalWatches":     metrics.TotalWatches,
			"activeWatches":    metrics.ActiveWatches,
			"totalConnections": metrics.TotalConnections,
			"currentClients":   totalClients,
		},
		"watches": watchDetails,
	})
}

// 모든 구독자 그룹 강제 정리 (관리자용)
func forceCleanupWatches(w http.ResponseWriter, r *http.Request) {
	jobHub.cleanupEmptyWatches()
	jobHub.cleanupExpiredWatches()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "Cleanup completed",
	})
}

func main() {
	// 환경변수 로드
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	// 이벤트 브리지용 Redis 연결
	rdb := redisClient.Connect(cfg)
	if rdb == nil {
		log.Fatal("❌ Failed to connect to Redis")
	}
	jobHub.publisher = notify.NewPublisher(rdb)

	// 정리 루틴 시작
	jobHub.startCleanupRoutine()

	// Redis Queue Worker 시작 (백그라운드)
	go worker.StartWorkers()

	// 라우터 설정
	r := mux.NewRouter()
	r.Use(enableCORS)

	r.HandleFunc("/", healthCheck).Methods("GET")
	r.HandleFunc("/health", healthCheck).Methods("GET")
	r.HandleFunc("/ws", handleWebSocket)
	r.HandleFunc("/metrics", getMetrics).Methods("GET")
	r.HandleFunc("/admin/cleanup", forceCleanupWatches).Methods("POST")

	ingestionHandler := ingestion.NewIngestionHandler()
	ingestionHandler.RegisterRoutes(r)

	generationHandler := generation.NewGenerationHandler()
	generationHandler.RegisterRoutes(r)

	port := cfg.Port

	log.Printf("🚀 Slidecast Server starting on port %s", port)
	log.Printf("📡 WebSocket endpoint: ws://localhost:%s/ws?job=<id>", port)
	log.Printf("❤️  Health check: http://localhost:%s/health", port)
	log.Printf("📊 Metrics: http://localhost:%s/metrics", port)

	if err := http.ListenAndServe(":"+port, r); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
