package task

import (
	"go.uber.org/zap/zapcore"
)

// core forwards zap entries to the task log. Tee it with the process logger
// through zapcore.NewTee; never give it to the session or its writer, whose
// own debug logs would feed back into the queue.
type core struct {
	zapcore.LevelEnabler
	lifecycle *Lifecycle
	fields    []zapcore.Field
}

// NewCore returns a zapcore.Core writing every enabled entry as a task.log
// notification. Entry fields become the data of the log line.
func NewCore(lifecycle *Lifecycle, enab zapcore.LevelEnabler) zapcore.Core {
	return &core{LevelEnabler: enab, lifecycle: lifecycle}
}

func (c *core) With(fields []zapcore.Field) zapcore.Core {
	clone := *c
	clone.fields = make([]zapcore.Field, 0, len(c.fields)+len(fields))
	clone.fields = append(clone.fields, c.fields...)
	clone.fields = append(clone.fields, fields...)
	return &clone
}

func (c *core) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *core) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}
	var data interface{}
	if len(enc.Fields) > 0 {
		data = enc.Fields
	}
	return c.lifecycle.Log(LogEntry{
		Event:   eventFor(ent.Level),
		Message: ent.Message,
		Data:    data,
		Time:    ent.Time,
	})
}

func (c *core) Sync() error {
	return nil
}

func eventFor(level zapcore.Level) Event {
	switch {
	case level < zapcore.InfoLevel:
		return EventDebug
	case level == zapcore.InfoLevel:
		return EventInfo
	case level == zapcore.WarnLevel:
		return EventWarn
	case level == zapcore.ErrorLevel:
		return EventError
	default:
		return EventException
	}
}
