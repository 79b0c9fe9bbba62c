package logging

import (
	"bytes"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{" INFO ", zapcore.InfoLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"verbose", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestInitializeSilentByDefault(t *testing.T) {
	t.Setenv(LogLevelEnvVar, "")
	if err := Initialize(""); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if GetLogger().Core().Enabled(zapcore.ErrorLevel) {
		t.Error("default logger is enabled, want nop")
	}
}

func TestHexAndASCIIDump(t *testing.T) {
	data := []byte{'O', 'K', 0x00, 0xff}
	if got := HexDump(data); got != "4f4b00ff" {
		t.Errorf("HexDump() = %q, want %q", got, "4f4b00ff")
	}
	if got := ASCIIDump(data); got != "OK.." {
		t.Errorf("ASCIIDump() = %q, want %q", got, "OK..")
	}

	long := bytes.Repeat([]byte{0xab}, maxDumpBytes+10)
	if got := HexDump(long); !strings.HasSuffix(got, "...") || len(got) != maxDumpBytes*2+3 {
		t.Errorf("HexDump(long) length = %d, want truncated with ...", len(got))
	}
	if got := HexDump(nil); got != "" {
		t.Errorf("HexDump(nil) = %q, want empty", got)
	}
}

func TestLogDatagram(t *testing.T) {
	tests := []struct {
		name      string
		level     zapcore.Level
		wantEntry bool
		wantASCII bool
	}{
		{"debug", zapcore.DebugLevel, true, true},
		{"info", zapcore.InfoLevel, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(tt.level)
			l := zap.New(core)

			LogDatagram(l, "received", "10.0.0.5:7000", []byte{0x01, 0x02})

			entries := logs.All()
			if (len(entries) == 1) != tt.wantEntry {
				t.Fatalf("entries = %d, wantEntry %v", len(entries), tt.wantEntry)
			}
			if !tt.wantEntry {
				return
			}
			fields := entries[0].ContextMap()
			if fields["hex"] != "0102" {
				t.Errorf("hex = %v, want 0102", fields["hex"])
			}
			if fields["addr"] != "10.0.0.5:7000" {
				t.Errorf("addr = %v, want 10.0.0.5:7000", fields["addr"])
			}
			if _, ok := fields["ascii"]; ok != tt.wantASCII {
				t.Errorf("ascii present = %v, want %v", ok, tt.wantASCII)
			}
		})
	}
}

func TestSetLoggerNil(t *testing.T) {
	SetLogger(nil)
	if GetLogger() == nil {
		t.Fatal("GetLogger() = nil after SetLogger(nil)")
	}
	Named("test").Info("discarded")
}
