package observability

import "testing"

type captureLogger struct {
	level  string
	msg    string
	fields []Field
}

func (c *captureLogger) Debug(msg string, fields ...Field) { c.record("debug", msg, fields) }
func (c *captureLogger) Info(msg string, fields ...Field)  { c.record("info", msg, fields) }
func (c *captureLogger) Warn(msg string, fields ...Field)  { c.record("warn", msg, fields) }
func (c *captureLogger) Error(msg string, fields ...Field) { c.record("error", msg, fields) }

func (c *captureLogger) record(level, msg string, fields []Field) {
	c.level = level
	c.msg = msg
	c.fields = fields
}

func TestSetLoggerInstallsAndClears(t *testing.T) {
	t.Cleanup(func() { SetLogger(nil) })

	capture := &captureLogger{}
	SetLogger(capture)
	Log().Warn("sequence gap", Field{Key: "symbol", Value: "BTC-USDT"})

	if capture.level != "warn" || capture.msg != "sequence gap" {
		t.Fatalf("expected warn to reach installed logger, got %q/%q", capture.level, capture.msg)
	}
	if len(capture.fields) != 1 || capture.fields[0].Key != "symbol" {
		t.Fatalf("expected field to pass through, got %+v", capture.fields)
	}

	SetLogger(nil)
	Log().Error("dropped")
	if capture.level == "error" {
		t.Fatalf("expected noop logger after reset")
	}
}
