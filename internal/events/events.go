// Package events defines the safeguard audit event and the sinks it is
// emitted to. The engine creates events at its decision points and fires them
// to a sink; it never stores them itself.
package events

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Type classifies a safeguard event.
type Type int

const (
	TypeLoad Type = iota + 1
	TypeCheck
	TypeViolation
	TypeAction
)

func (t Type) String() string {
	switch t {
	case TypeLoad:
		return "load"
	case TypeCheck:
		return "check"
	case TypeViolation:
		return "violation"
	case TypeAction:
		return "action"
	default:
		return "unspecified"
	}
}

// Event is one safeguard decision-point record. Immutable once created.
type Event struct {
	ID             string
	Timestamp      time.Time
	Type           Type
	ProjectID      string // scopes events in hosted deployments, empty for library use
	Message        string
	SourceAgent    string
	TargetAgent    string
	GuardrailType  string
	Action         string
	ContentPreview string
}

// New stamps an event with an ID and timestamp.
func New(t Type, message string) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Timestamp: time.Now(),
		Type:      t,
		Message:   message,
	}
}

// PreviewLength is the max runes kept in an event's content preview.
const PreviewLength = 100

// Preview truncates content for event payloads. It never splits a multi-byte
// UTF-8 character.
func Preview(content string) string {
	runes := []rune(content)
	if len(runes) <= PreviewLength {
		return content
	}
	return string(runes[:PreviewLength]) + "..."
}

// Sink receives safeguard events. Send must never block the caller.
type Sink interface {
	Send(event *Event)
	Close()
}

// LogSink writes events as structured logs. It is the fallback sink and the
// default for library embedding.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a LogSink on the given logger.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Send(event *Event) {
	s.logger.Info("safeguard_event",
		zap.String("event_id", event.ID),
		zap.String("event_type", event.Type.String()),
		zap.String("message", event.Message),
		zap.String("source_agent", event.SourceAgent),
		zap.String("target_agent", event.TargetAgent),
		zap.String("guardrail_type", event.GuardrailType),
		zap.String("action", event.Action),
		zap.String("content_preview", event.ContentPreview),
	)
}

func (s *LogSink) Close() {}

// MultiSink fans one event out to several sinks.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink combines sinks. Nil entries are skipped.
func NewMultiSink(sinks ...Sink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

func (m *MultiSink) Send(event *Event) {
	for _, s := range m.sinks {
		s.Send(event)
	}
}

func (m *MultiSink) Close() {
	for _, s := range m.sinks {
		s.Close()
	}
}
