package logging

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// AuditEventType defines the type of audit event in a stage invocation.
type AuditEventType string

const (
	AuditStageStart     AuditEventType = "stage_start"
	AuditStageStaged    AuditEventType = "stage_staged"
	AuditEngineStart    AuditEventType = "engine_start"
	AuditEngineExit     AuditEventType = "engine_exit"
	AuditEngineError    AuditEventType = "engine_error"
	AuditStageSucceeded AuditEventType = "stage_succeeded"
	AuditStageFailed    AuditEventType = "stage_failed"
)

// AuditEvent is one structured entry in the invocation audit trail.
type AuditEvent struct {
	EventType AuditEventType
	Stage     string
	RequestID string
	Target    string // binary, scratch dir or destination depending on the event
	ExitCode  int
	Duration  time.Duration
	Success   bool
	Error     string
	Fields    map[string]interface{}
}

// Audit writes e to the audit category. Failures are logged at warn level.
func Audit(e AuditEvent) {
	fields := []zap.Field{
		zap.String("category", string(CategoryAudit)),
		zap.String("event", string(e.EventType)),
		zap.String("stage", e.Stage),
		zap.String("request_id", e.RequestID),
		zap.Bool("success", e.Success),
	}
	if e.Target != "" {
		fields = append(fields, zap.String("target", e.Target))
	}
	if e.EventType == AuditEngineExit {
		fields = append(fields, zap.Int("exit_code", e.ExitCode))
	}
	if e.Duration > 0 {
		fields = append(fields, zap.Duration("duration", e.Duration))
	}
	if e.Error != "" {
		fields = append(fields, zap.String("error", e.Error))
	}
	for k, v := range e.Fields {
		fields = append(fields, zap.Any(k, v))
	}

	level := zapcore.InfoLevel
	if !e.Success && e.EventType != AuditStageStart && e.EventType != AuditEngineStart && e.EventType != AuditStageStaged {
		level = zapcore.WarnLevel
	}
	if ce := L().Check(level, "audit"); ce != nil {
		ce.Write(fields...)
	}
}
