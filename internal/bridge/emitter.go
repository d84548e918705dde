package bridge

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/meshbridge/rnsbridge-go/pkg/logger"
)

// event is the outbound wire shape: exactly three top-level fields.
type event struct {
	Type      string  `json:"type"`
	Data      any     `json:"data"`
	Timestamp float64 `json:"timestamp"`
}

// Emitter serializes events as single newline-terminated JSON lines. Every
// event goes out in one Write call under the mutex, so concurrent emitters
// (command path and stack callbacks) can never interleave partial lines.
type Emitter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewEmitter creates an emitter writing to w, typically stdout.
func NewEmitter(w io.Writer) *Emitter {
	return &Emitter{w: w}
}

// Emit writes one event. Failures are logged, never propagated; the
// producing activity must not die because a consumer went away mid-write.
func (e *Emitter) Emit(eventType string, data any) {
	encoded, err := json.Marshal(event{
		Type:      eventType,
		Data:      data,
		Timestamp: float64(time.Now().UnixNano()) / float64(time.Second),
	})
	if err != nil {
		logger.ErrorCf("emitter", "error encoding %s event: %v", eventType, err)
		return
	}
	encoded = append(encoded, '\n')

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.w.Write(encoded); err != nil {
		logger.ErrorCf("emitter", "error sending %s event: %v", eventType, err)
	}
}
