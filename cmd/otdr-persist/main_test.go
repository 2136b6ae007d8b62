package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/fiberlab/otdr-persist/internal/config"
	"github.com/fiberlab/otdr-persist/internal/models"
	"github.com/fiberlab/otdr-persist/internal/repo"
)

func TestNewLoader(t *testing.T) {
	cfg := &config.Config{Source: config.SourceConfig{Kind: "frontpanel", BaseURL: "http://panel:7070", Timeout: time.Second}}
	if _, ok := newLoader(cfg).(*repo.FrontPanelClient); !ok {
		t.Fatalf("expected front panel client")
	}
	cfg.Source.Kind = "file"
	if _, ok := newLoader(cfg).(*repo.SnapshotFile); !ok {
		t.Fatalf("expected snapshot file loader")
	}
}

func TestPrintSessions(t *testing.T) {
	var buf bytes.Buffer
	printSessions(&buf, nil)
	if !strings.Contains(buf.String(), "No sessions found.") {
		t.Fatalf("unexpected output: %q", buf.String())
	}

	buf.Reset()
	length := 1.9979
	printSessions(&buf, []models.SessionSummary{{
		HeaderID:       7,
		FiberIDString:  "SPOOL-0042",
		DateCreated:    time.Date(2024, 3, 14, 9, 18, 55, 0, time.UTC),
		Instrument:     "OM-1138",
		ReportedLength: &length,
		ResultCounts:   map[models.ResultKind]int{models.KindSignature: 4},
	}})
	out := buf.String()
	for _, want := range []string{"SPOOL-0042", "2024-03-14T09:18:55Z", "OM-1138", "1.9979"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"version"})
	defer rootCmd.SetArgs(nil)
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "otdr-persist dev") {
		t.Fatalf("unexpected version output: %q", buf.String())
	}
}
