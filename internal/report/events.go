package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/franz/dupe-janitor/internal/session"
)

// EventType represents the type of event
type EventType string

const (
	EventImport      EventType = "import"
	EventSession     EventType = "session"
	EventGroups      EventType = "groups"
	EventDelete      EventType = "delete"
	EventMetadata    EventType = "metadata"
	EventFingerprint EventType = "fingerprint"
	EventResolve     EventType = "resolve"
	EventError       EventType = "error"
)

// EventLevel represents the severity level
type EventLevel string

const (
	LevelDebug   EventLevel = "debug"
	LevelInfo    EventLevel = "info"
	LevelWarning EventLevel = "warning"
	LevelError   EventLevel = "error"
)

// levelPriority maps event levels to numeric priorities for comparison
var levelPriority = map[EventLevel]int{
	LevelDebug:   0,
	LevelInfo:    1,
	LevelWarning: 2,
	LevelError:   3,
}

// Event is one line of the audit log
type Event struct {
	Timestamp time.Time         `json:"ts"`
	Level     EventLevel        `json:"level"`
	Event     EventType         `json:"event"`
	FileID    int64             `json:"file_id,omitempty"`
	Path      string            `json:"path,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	GroupID   int               `json:"group_id,omitempty"`
	Action    string            `json:"action,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	SizeBytes int64             `json:"size_bytes,omitempty"`
	Error     string            `json:"error,omitempty"`
	Extra     map[string]string `json:"extra,omitempty"`
}

// EventLogger writes events to a JSONL file. A nil *EventLogger is valid
// and discards everything.
type EventLogger struct {
	file     *os.File
	encoder  *json.Encoder
	mu       sync.Mutex
	path     string
	minLevel EventLevel
}

var _ session.Sink = (*EventLogger)(nil)

// NewEventLogger creates a new event logger with a minimum log level
// minLevel determines which events are written (e.g., LevelInfo skips LevelDebug)
func NewEventLogger(outputDir string, minLevel EventLevel) (*EventLogger, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405")
	filename := fmt.Sprintf("events-%s.jsonl", timestamp)
	path := filepath.Join(outputDir, filename)

	// Append so two loggers created in the same second share one file
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create event log: %w", err)
	}

	return &EventLogger{
		file:     file,
		encoder:  json.NewEncoder(file),
		path:     path,
		minLevel: minLevel,
	}, nil
}

// ParseLevel converts a config string to an EventLevel
func ParseLevel(s string) (EventLevel, error) {
	level := EventLevel(strings.ToLower(strings.TrimSpace(s)))
	if level == "warn" {
		level = LevelWarning
	}
	if _, ok := levelPriority[level]; !ok {
		return "", fmt.Errorf("unknown event level %q", s)
	}
	return level, nil
}

// Log writes an event to the JSONL file
func (l *EventLogger) Log(event *Event) error {
	if l == nil || l.file == nil {
		return nil
	}

	if levelPriority[event.Level] < levelPriority[l.minLevel] {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if err := l.encoder.Encode(event); err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	return nil
}

// LogImport logs a file added to or refreshed in the library
func (l *EventLogger) LogImport(fileID int64, path string, sizeBytes int64) error {
	return l.Log(&Event{
		Level:     LevelDebug,
		Event:     EventImport,
		FileID:    fileID,
		Path:      path,
		SizeBytes: sizeBytes,
	})
}

// LogDelete logs a file removal. A non-nil err records a failed attempt.
func (l *EventLogger) LogDelete(fileID int64, path, reason string, err error) error {
	event := &Event{
		Level:  LevelInfo,
		Event:  EventDelete,
		FileID: fileID,
		Path:   path,
		Action: "delete",
		Reason: reason,
	}
	if err != nil {
		event.Level = LevelError
		event.Error = err.Error()
	}
	return l.Log(event)
}

// LogMetadata logs a tag edit applied to a set of files
func (l *EventLogger) LogMetadata(fileIDs []int64, fields []string, updated int) error {
	return l.Log(&Event{
		Level:  LevelInfo,
		Event:  EventMetadata,
		Action: "update",
		Extra: map[string]string{
			"files":   fmt.Sprintf("%d", len(fileIDs)),
			"updated": fmt.Sprintf("%d", updated),
			"fields":  strings.Join(fields, ","),
		},
	})
}

// LogFingerprint logs the outcome of fingerprinting one file
func (l *EventLogger) LogFingerprint(fileID int64, path string, err error) error {
	event := &Event{
		Level:  LevelDebug,
		Event:  EventFingerprint,
		FileID: fileID,
		Path:   path,
	}
	if err != nil {
		event.Level = LevelWarning
		event.Error = err.Error()
	}
	return l.Log(event)
}

// LogResolve logs the decision taken for one duplicate group
func (l *EventLogger) LogResolve(groupID int, keepPath, reason string, removed int) error {
	return l.Log(&Event{
		Level:   LevelInfo,
		Event:   EventResolve,
		GroupID: groupID,
		Path:    keepPath,
		Action:  "keep",
		Reason:  reason,
		Extra: map[string]string{
			"removed": fmt.Sprintf("%d", removed),
		},
	})
}

// LogError logs an error event
func (l *EventLogger) LogError(event EventType, path string, err error) error {
	return l.Log(&Event{
		Level: LevelError,
		Event: event,
		Path:  path,
		Error: err.Error(),
	})
}

// PublishProgress records session stage changes. Intermediate snapshots
// are debug-level; the terminal one carries the outcome.
func (l *EventLogger) PublishProgress(s session.Snapshot) {
	level := LevelDebug
	switch s.Stage {
	case session.StageCompleted, session.StageCancelled:
		level = LevelInfo
	case session.StageError:
		level = LevelError
	}

	_ = l.Log(&Event{
		Level:     level,
		Event:     EventSession,
		SessionID: s.SessionID,
		Action:    string(s.Stage),
		Error:     s.Error,
		Extra: map[string]string{
			"strategy":        string(s.Strategy),
			"files_processed": fmt.Sprintf("%d/%d", s.FilesProcessed, s.TotalFiles),
			"groups_found":    fmt.Sprintf("%d", s.GroupsFound),
		},
	})
}

// PublishGroups records one delivered batch of groups
func (l *EventLogger) PublishGroups(b session.GroupBatch) {
	_ = l.Log(&Event{
		Level:     LevelDebug,
		Event:     EventGroups,
		SessionID: b.SessionID,
		Extra: map[string]string{
			"batch": fmt.Sprintf("%d", len(b.Groups)),
			"total": fmt.Sprintf("%d", b.TotalGroupsFound),
		},
	})
}

// Close closes the event log file
func (l *EventLogger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.file.Close()
}

// Path returns the path to the event log file
func (l *EventLogger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// NullLogger returns a no-op event logger
func NullLogger() *EventLogger {
	return nil
}
