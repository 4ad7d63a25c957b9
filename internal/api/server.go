// Package api предоставляет локальный HTTP API для управления циклом
// и наблюдения за состоянием.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"voicetutor/internal/metrics"
	"voicetutor/internal/session"
	"voicetutor/pkg/logger"
)

const (
	wsWriteTimeout  = 5 * time.Second
	wsPingInterval  = 30 * time.Second
	wsLevelInterval = 200 * time.Millisecond // уровень сигнала во время записи
	wsBuffer        = 16
)

// Controller - управляемый цикл (session.Controller).
type Controller interface {
	State() session.State
	StartGesture()
	StopGesture()
	Subscribe(buffer int) (<-chan session.State, func())
	Level() float32
}

// StateResponse - состояние цикла в JSON.
type StateResponse struct {
	Phase       string    `json:"phase"`
	Cycle       string    `json:"cycle,omitempty"`
	Message     string    `json:"message,omitempty"`
	Text        string    `json:"text,omitempty"`
	Transcript  string    `json:"transcript,omitempty"`
	HasAudio    bool      `json:"has_audio"`
	AudioFormat string    `json:"audio_format,omitempty"`
	Level       float32   `json:"level,omitempty"`
	Changed     time.Time `json:"changed"`
}

func newStateResponse(st session.State) StateResponse {
	resp := StateResponse{
		Phase:   st.Phase.String(),
		Message: st.Message,
		Changed: st.Changed,
	}
	if st.Phase != session.PhaseIdle {
		resp.Cycle = st.Cycle.String()
	}
	if st.Reply != nil {
		resp.Text = st.Reply.Text
		resp.Transcript = st.Reply.Transcript
		resp.HasAudio = st.Reply.HasAudio()
		if resp.HasAudio {
			resp.AudioFormat = string(st.Reply.AudioFormat)
		}
	}
	return resp
}

// snapshot - текущее состояние с уровнем сигнала во время записи.
func (s *Server) snapshot() StateResponse {
	resp := newStateResponse(s.ctrl.State())
	if resp.Phase == session.PhaseRecording.String() {
		resp.Level = s.ctrl.Level()
	}
	return resp
}

// Server - HTTP-сервер API.
type Server struct {
	ctrl       Controller
	metrics    *metrics.Metrics
	middleware *Middleware
	upgrader   websocket.Upgrader
	server     *http.Server
	logger     *logger.Logger
}

// NewServer создаёт сервер. metrics может быть nil, тогда /metrics не публикуется.
func NewServer(ctrl Controller, m *metrics.Metrics, log *logger.Logger) *Server {
	return &Server{
		ctrl:       ctrl,
		metrics:    m,
		middleware: NewMiddleware(log, m),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: log.Named("api"),
	}
}

// Routes возвращает маршруты API.
func (s *Server) Routes() http.Handler {
	router := chi.NewRouter()

	router.Use(s.middleware.RequestID)
	router.Use(s.middleware.Logger)
	router.Use(s.middleware.Recoverer)

	router.Route("/api/v1", func(router chi.Router) {
		router.Get("/health", s.getHealth)
		router.Get("/state", s.getState)
		router.Post("/recording/start", s.startRecording)
		router.Post("/recording/stop", s.stopRecording)
		router.Get("/reply/audio", s.getReplyAudio)
		router.Get("/ws", s.handleWebSocket)
	})

	if s.metrics != nil {
		router.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	}

	return router
}

// Start слушает addr в фоне. Возвращает фактический адрес.
func (s *Server) Start(addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", err
	}

	s.server = &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP-сервер остановлен с ошибкой", logger.Error(err))
		}
	}()

	s.logger.Info("Локальный API запущен", logger.String("address", ln.Addr().String()))
	return ln.Addr().String(), nil
}

// Shutdown останавливает сервер.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshot())
}

func (s *Server) startRecording(w http.ResponseWriter, r *http.Request) {
	s.ctrl.StartGesture()
	writeJSON(w, http.StatusAccepted, s.snapshot())
}

func (s *Server) stopRecording(w http.ResponseWriter, r *http.Request) {
	s.ctrl.StopGesture()
	writeJSON(w, http.StatusAccepted, s.snapshot())
}

func (s *Server) getReplyAudio(w http.ResponseWriter, r *http.Request) {
	st := s.ctrl.State()
	if st.Phase != session.PhaseReady || st.Reply == nil || !st.Reply.HasAudio() {
		writeError(w, http.StatusNotFound, "no reply audio")
		return
	}

	w.Header().Set("Content-Type", st.Reply.AudioFormat.MIMEType())
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(st.Reply.Audio)
}

// handleWebSocket отправляет текущее состояние, затем каждое изменение,
// а во время записи - уровень сигнала.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Ошибка upgrade WebSocket", logger.Error(err))
		return
	}
	defer conn.Close()

	updates, unsubscribe := s.ctrl.Subscribe(wsBuffer)
	defer unsubscribe()

	// Чтение нужно только для обработки close и pong
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := s.send(conn, s.snapshot()); err != nil {
		return
	}

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()
	level := time.NewTicker(wsLevelInterval)
	defer level.Stop()

	for {
		select {
		case st, ok := <-updates:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
					time.Now().Add(wsWriteTimeout))
				return
			}
			if err := s.send(conn, newStateResponse(st)); err != nil {
				return
			}
		case <-level.C:
			if resp := s.snapshot(); resp.Level > 0 {
				if err := s.send(conn, resp); err != nil {
					return
				}
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) send(conn *websocket.Conn, resp StateResponse) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(resp); err != nil {
		s.logger.Debug("Клиент WebSocket отключился", logger.Error(err))
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
