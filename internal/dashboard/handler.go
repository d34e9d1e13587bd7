package dashboard

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/steveyegge/wiki-link/internal/logging"
	"github.com/steveyegge/wiki-link/internal/mirror"
)

// MirrorUpdateData describes one mirror-tree action.
type MirrorUpdateData struct {
	Action string `json:"action"` // converted, failed, mkdir, removed, move_ignored
	Source string `json:"source"`
	Dest   string `json:"dest,omitempty"`
	Bytes  int    `json:"bytes,omitempty"`
	Error  string `json:"error,omitempty"`
}

// CrawlCompleteData summarizes a bulk pass.
type CrawlCompleteData struct {
	Documents int           `json:"documents"`
	Converted int           `json:"converted"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
}

// StatsData contains running totals since startup.
type StatsData struct {
	RunID        string `json:"run_id,omitempty"`
	Converted    int    `json:"converted"`
	Failed       int    `json:"failed"`
	Removed      int    `json:"removed"`
	Directories  int    `json:"directories"`
	MovesIgnored int    `json:"moves_ignored"`
	Crawls       int    `json:"crawls"`
}

// Handler turns mirror activity into dashboard messages. It implements
// mirror.Reporter and is safe for concurrent use.
type Handler struct {
	server *Server
	logger zerolog.Logger

	mu    sync.Mutex
	stats StatsData
}

var _ mirror.Reporter = (*Handler)(nil)

// NewHandler creates a new activity handler connected to a dashboard server
// and registers it as the source of the server's welcome message.
func NewHandler(server *Server, runID string, logger zerolog.Logger) *Handler {
	h := &Handler{
		server: server,
		logger: logging.Component(logger, "dashboard"),
		stats:  StatsData{RunID: runID},
	}
	server.SetWelcome(h.statsMessage)
	return h
}

// Report broadcasts one mirror action and the updated totals.
func (h *Handler) Report(a mirror.Activity) {
	h.mu.Lock()
	switch a.Kind {
	case mirror.ActivityConverted:
		h.stats.Converted++
	case mirror.ActivityFailed:
		h.stats.Failed++
	case mirror.ActivityRemoved:
		h.stats.Removed++
	case mirror.ActivityMkdir:
		h.stats.Directories++
	case mirror.ActivityMoveIgnored:
		h.stats.MovesIgnored++
	}
	h.mu.Unlock()

	data := MirrorUpdateData{
		Action: string(a.Kind),
		Source: a.Source,
		Dest:   a.Dest,
		Bytes:  a.Bytes,
	}
	if a.Err != nil {
		data.Error = a.Err.Error()
	}

	h.send(MessageTypeMirrorUpdate, data)
	h.server.Broadcast(h.statsMessage())
}

// CrawlComplete broadcasts a bulk pass summary.
func (h *Handler) CrawlComplete(s mirror.CrawlStats) {
	h.mu.Lock()
	h.stats.Crawls++
	h.mu.Unlock()

	h.send(MessageTypeCrawlComplete, CrawlCompleteData{
		Documents: s.Documents,
		Converted: s.Converted,
		Failed:    s.Failed,
		Duration:  s.Duration,
	})
}

// GetStats returns the current totals.
func (h *Handler) GetStats() StatsData {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}

func (h *Handler) statsMessage() Message {
	stats := h.GetStats()
	data, err := json.Marshal(stats)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to marshal stats")
	}
	return Message{Type: MessageTypeStats, Timestamp: time.Now(), Data: data}
}

func (h *Handler) send(typ MessageType, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Error().Err(err).Str("type", string(typ)).Msg("Failed to marshal message")
		return
	}
	h.server.Broadcast(Message{Type: typ, Timestamp: time.Now(), Data: data})
}
