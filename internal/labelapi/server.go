// Package labelapi is the request/response channel between the human
// collector and a browser-based labeling frontend. The collector posts
// comparisons and polls for verdicts over HTTP; the frontend receives
// new comparisons over a WebSocket feed and submits labels back.
package labelapi

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/openpref/preflearn/internal/segment"
)

// #region payloads

// SegmentPayload carries one clip to the frontend for rendering.
type SegmentPayload struct {
	ID       string         `json:"id"`
	EnvID    string         `json:"env_id"`
	ObsShape []int          `json:"obs_shape"`
	Steps    []segment.Step `json:"steps"`
}

// ComparisonPayload is one labeling task.
type ComparisonPayload struct {
	ID        string         `json:"id"`
	Left      SegmentPayload `json:"left"`
	Right     SegmentPayload `json:"right"`
	CreatedAt time.Time      `json:"created_at"`
}

// Verdict is a submitted human label.
type Verdict struct {
	ComparisonID string `json:"comparison_id"`
	Label        string `json:"label"` // left | right | equal
}

func validLabel(label string) bool {
	switch label {
	case "left", "right", "equal":
		return true
	}
	return false
}

// #endregion payloads

// #region server

// Server queues pending comparisons and collects verdicts in memory.
type Server struct {
	mu       sync.Mutex
	pending  []ComparisonPayload
	byID     map[string]int // index into pending
	verdicts []Verdict

	wsMu    sync.Mutex
	wsConns map[*websocket.Conn]bool
}

// NewServer creates an empty labeling server.
func NewServer() *Server {
	return &Server{
		byID:    map[string]int{},
		wsConns: map[*websocket.Conn]bool{},
	}
}

// Routes mounts the labeling API on a gin engine.
func (s *Server) Routes(r *gin.Engine) {
	api := r.Group("/api")
	api.POST("/comparisons", s.handleEnqueue)
	api.GET("/comparisons/pending", s.handlePending)
	api.POST("/comparisons/:id/label", s.handleLabel)
	api.GET("/verdicts", s.handleDrainVerdicts)
	r.GET("/ws", s.handleWS)
}

func (s *Server) handleEnqueue(c *gin.Context) {
	var payload ComparisonPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.mu.Lock()
	if _, dup := s.byID[payload.ID]; dup {
		s.mu.Unlock()
		c.JSON(http.StatusConflict, gin.H{"error": "comparison already queued"})
		return
	}
	s.byID[payload.ID] = len(s.pending)
	s.pending = append(s.pending, payload)
	s.mu.Unlock()

	s.broadcast(gin.H{"event": "comparison", "comparison": payload})
	c.JSON(http.StatusAccepted, gin.H{"queued": payload.ID})
}

func (s *Server) handlePending(c *gin.Context) {
	s.mu.Lock()
	out := append([]ComparisonPayload(nil), s.pending...)
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"count": len(out), "comparisons": out})
}

func (s *Server) handleLabel(c *gin.Context) {
	id := c.Param("id")
	var body struct {
		Label string `json:"label"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !validLabel(body.Label) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "label must be left, right or equal"})
		return
	}

	s.mu.Lock()
	idx, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		c.JSON(http.StatusNotFound, gin.H{"error": "comparison not pending"})
		return
	}
	// Remove from pending; a second verdict for the same comparison 404s.
	s.pending = append(s.pending[:idx], s.pending[idx+1:]...)
	delete(s.byID, id)
	for i := idx; i < len(s.pending); i++ {
		s.byID[s.pending[i].ID] = i
	}
	s.verdicts = append(s.verdicts, Verdict{ComparisonID: id, Label: body.Label})
	s.mu.Unlock()

	slog.Info("verdict recorded", "comparison", id, "label", body.Label)
	c.JSON(http.StatusOK, gin.H{"labeled": id})
}

func (s *Server) handleDrainVerdicts(c *gin.Context) {
	s.mu.Lock()
	out := s.verdicts
	s.verdicts = nil
	s.mu.Unlock()
	if out == nil {
		out = []Verdict{}
	}
	c.JSON(http.StatusOK, gin.H{"verdicts": out})
}

// #endregion server

// #region websocket

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

func (s *Server) handleWS(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}
	slog.Info("labeling frontend connected")

	// Push the backlog so a late-joining frontend sees queued work.
	// Registration happens under the write lock, after the backlog, so
	// broadcasts never interleave with these writes on one connection.
	s.mu.Lock()
	backlog := append([]ComparisonPayload(nil), s.pending...)
	s.mu.Unlock()
	s.wsMu.Lock()
	for _, payload := range backlog {
		if err := ws.WriteJSON(gin.H{"event": "comparison", "comparison": payload}); err != nil {
			break
		}
	}
	s.wsConns[ws] = true
	s.wsMu.Unlock()

	go func() {
		defer func() {
			s.wsMu.Lock()
			delete(s.wsConns, ws)
			s.wsMu.Unlock()
			ws.Close()
		}()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				slog.Info("labeling frontend disconnected", "error", err.Error())
				return
			}
		}
	}()
}

func (s *Server) broadcast(v any) {
	s.wsMu.Lock()
	defer s.wsMu.Unlock()
	for ws := range s.wsConns {
		if err := ws.WriteJSON(v); err != nil {
			slog.Warn("dropping websocket client", "error", err)
			ws.Close()
			delete(s.wsConns, ws)
		}
	}
}

// #endregion websocket
