package reporting

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRenderRunReport(t *testing.T) {
	results := FromResult("scheduled", sampleResult(), nil, map[string]string{"u1": "Asha"})

	report, err := RenderRunReport(results, "/var/log/taskrota.log")
	if err != nil {
		t.Fatalf("RenderRunReport: %v", err)
	}

	for _, want := range []string{
		"# Daily Assignment - 2026-10-19 09:00",
		"- Trigger: scheduled",
		"- Strategy: round-robin",
		"- Duration: 2s",
		"- Tasks: 2 created, 1 assigned, 1 failed",
		"- Already existing today: 3",
		"- Logs: /var/log/taskrota.log",
		"## Assigned\n- Inbox triage -> Asha\n",
		"## Unassigned\n- Inbox triage\n",
		"## Failed\n- End of day report -> u2: database is locked\n",
	} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q:\n%s", want, report)
		}
	}
}

func TestRenderRunReportEmptySections(t *testing.T) {
	results := &RunResults{
		Source:    "manual",
		StartTime: time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC),
		Error:     "no eligible users for task assignment",
	}
	report, err := RenderRunReport(results, "")
	if err != nil {
		t.Fatalf("RenderRunReport: %v", err)
	}
	if strings.Contains(report, "## Assigned") || strings.Contains(report, "Logs:") {
		t.Errorf("unexpected sections:\n%s", report)
	}
	if !strings.Contains(report, "- Error: no eligible users") {
		t.Errorf("report missing error line:\n%s", report)
	}
}

func TestRenderRunReportNil(t *testing.T) {
	if _, err := RenderRunReport(nil, ""); err == nil {
		t.Fatal("expected error for nil results")
	}
}

func TestSaveRunReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "run.md")
	if err := SaveRunReport(FromResult("manual", sampleResult(), nil, nil), path, ""); err != nil {
		t.Fatalf("SaveRunReport: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.HasPrefix(string(data), "# Daily Assignment") {
		t.Errorf("unexpected report:\n%s", data)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{250 * time.Millisecond, "250ms"},
		{5 * time.Second, "5s"},
		{90 * time.Second, "1m 30s"},
		{2*time.Hour + 5*time.Minute, "2h 5m"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
