package emit

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

// LogEmitter writes events to a writer as text or JSON lines.
//
// Example text output:
//
//	[chat_start] request=7f1c... conversation=u1 meta={"role":"student"}
//
// Example JSON output:
//
//	{"requestID":"7f1c...","conversationID":"u1","msg":"chat_start","meta":{"role":"student"}}
type LogEmitter struct {
	mu       sync.Mutex
	writer   io.Writer
	jsonMode bool
}

// NewLogEmitter creates a LogEmitter. A nil writer writes to stdout.
func NewLogEmitter(writer io.Writer, jsonMode bool) *LogEmitter {
	if writer == nil {
		writer = os.Stdout
	}
	return &LogEmitter{
		writer:   writer,
		jsonMode: jsonMode,
	}
}

// Emit writes one line per event. Lines from concurrent callers never interleave.
func (l *LogEmitter) Emit(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.jsonMode {
		l.emitJSON(event)
	} else {
		l.emitText(event)
	}
}

func (l *LogEmitter) emitJSON(event Event) {
	data, err := json.Marshal(struct {
		RequestID      string                 `json:"requestID"`
		ConversationID string                 `json:"conversationID"`
		Msg            string                 `json:"msg"`
		Meta           map[string]interface{} `json:"meta"`
	}{
		RequestID:      event.RequestID,
		ConversationID: event.ConversationID,
		Msg:            event.Msg,
		Meta:           event.Meta,
	})
	if err != nil {
		fmt.Fprintf(l.writer, "{\"error\":\"failed to marshal event: %v\"}\n", err)
		return
	}

	fmt.Fprintf(l.writer, "%s\n", data)
}

func (l *LogEmitter) emitText(event Event) {
	fmt.Fprintf(l.writer, "[%s] request=%s conversation=%s",
		event.Msg, event.RequestID, event.ConversationID)

	if len(event.Meta) > 0 {
		metaJSON, err := json.Marshal(event.Meta)
		if err == nil {
			fmt.Fprintf(l.writer, " meta=%s", metaJSON)
		} else {
			fmt.Fprintf(l.writer, " meta=%v", event.Meta)
		}
	}

	fmt.Fprint(l.writer, "\n")
}
