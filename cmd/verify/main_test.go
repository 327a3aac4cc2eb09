package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const routeFile = `
routes:
  - exact: ping
    reply: pong
  - regex: '^echo (.+)$'
    reply: $1
  - keywords: [help]
    reply: [Try ping., Or echo something.]
`

func writeRoutes(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "routes.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write routes: %v", err)
	}
	return path
}

func TestRun(t *testing.T) {
	path := writeRoutes(t, routeFile)

	tests := []struct {
		name     string
		args     []string
		wantCode int
		wantOut  string
	}{
		{
			name:     "all cases pass",
			args:     []string{"-routes", path, "-expect", "ping=pong", "-expect", "echo  hi there=hi there", "-expect", "gibberish"},
			wantCode: 0,
			wantOut:  "3 routes",
		},
		{
			name:     "multi-text reply",
			args:     []string{"-routes", path, "-expect", "help me=Try ping.\nOr echo something."},
			wantCode: 0,
			wantOut:  "1 passed, 0 failed",
		},
		{
			name:     "wrong reply",
			args:     []string{"-routes", path, "-expect", "ping=PONG"},
			wantCode: 1,
			wantOut:  `expected "PONG", got "pong"`,
		},
		{
			name:     "unexpected match",
			args:     []string{"-routes", path, "-expect", "ping"},
			wantCode: 1,
			wantOut:  "expected no match",
		},
		{
			name:     "missing file",
			args:     []string{"-routes", filepath.Join(t.TempDir(), "nope.yaml")},
			wantCode: 1,
			wantOut:  "no such file",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			code := run(tt.args, &out)
			if code != tt.wantCode {
				t.Errorf("run() = %d, want %d\n%s", code, tt.wantCode, out.String())
			}
			if !strings.Contains(out.String(), tt.wantOut) {
				t.Errorf("output missing %q:\n%s", tt.wantOut, out.String())
			}
		})
	}
}

func TestRun_InvalidRoutes(t *testing.T) {
	path := writeRoutes(t, "routes:\n  - regex: '(unclosed'\n    reply: x\n")

	var out bytes.Buffer
	if code := run([]string{"-routes", path, "-expect", "x=x"}, &out); code != 1 {
		t.Errorf("run() = %d, want 1", code)
	}
	if !strings.Contains(out.String(), "route 1") {
		t.Errorf("output should name the bad route:\n%s", out.String())
	}
}

func TestRun_NoFile(t *testing.T) {
	t.Setenv("CALAMARS_ROUTES_FILE", "")
	var out bytes.Buffer
	if code := run(nil, &out); code != 2 {
		t.Errorf("run() = %d, want 2", code)
	}
}
