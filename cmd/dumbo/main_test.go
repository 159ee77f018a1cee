package main

import (
	"bytes"
	"dumbo/pkg/config"
	"dumbo/pkg/version"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func newTestApp() (*app, *bytes.Buffer) {
	var buf bytes.Buffer
	return &app{cfg: config.Default(), logger: zerolog.Nop(), out: &buf}, &buf
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCommands(t *testing.T) {
	tmpl := writeTemp(t, "page.dumbo", "<h1>{{ x := 'hi'; print x; }}</h1>\n{{ for i in (1, 2) do print i; endfor; }}")

	tests := []struct {
		command  string
		args     []string
		contains []string
	}{
		{"run", []string{tmpl}, []string{"<h1>hi\n</h1>\n1\n2\n"}},
		{tmpl, nil, []string{"<h1>hi\n</h1>"}},
		{"eval", []string{"x := 2; print x * 21;"}, []string{"42\n"}},
		{"ast", []string{tmpl}, []string{"block 0 (1:5)", "x := 'hi';", "block 1", "for i in (1, 2) do print i; endfor;"}},
		{"tokens", []string{tmpl}, []string{"Text", "BlockStart", "Keyword", `"endfor"`, "EOF"}},
		{"disasm", []string{tmpl}, []string{"== block 0", "0000 OpAssign", "0001 OpPrint", "== block 1", "OpLoopStart i in", "OpLoopEnd"}},
		{"inspect", []string{tmpl}, []string{"Blocks (2)", "for i in (1, 2)", "Assigned (1): x", "Referenced (2): x, i"}},
		{"version", nil, []string{"Dumbo " + version.Version}},
		{"help", nil, []string{"dumbo serve"}},
	}

	for _, tt := range tests {
		a, out := newTestApp()
		if err := a.dispatch(tt.command, tt.args); err != nil {
			t.Errorf("%s: failed: %s", tt.command, err)
			continue
		}
		for _, want := range tt.contains {
			if !strings.Contains(out.String(), want) {
				t.Errorf("%s: output is missing %q. got=%q", tt.command, want, out.String())
			}
		}
	}
}

func TestRunSeedsGlobals(t *testing.T) {
	data := writeTemp(t, "data.dumbo", "{{ site := 'dumbo'; }}")
	vars := writeTemp(t, "vars.yaml", "owner: ada\n")
	tmpl := writeTemp(t, "page.dumbo", "{{ print site . owner; }}")

	a, out := newTestApp()
	if err := a.dispatch("run", []string{"-data", data, "-vars", vars, tmpl}); err != nil {
		t.Fatalf("run failed: %s", err)
	}
	if out.String() != "dumbo ada\n" {
		t.Fatalf("wrong output. want=%q, got=%q", "dumbo ada\n", out.String())
	}

	a, out = newTestApp()
	a.cfg.Data = data
	a.cfg.Vars = vars
	if err := a.dispatch("run", []string{tmpl}); err != nil {
		t.Fatalf("run with configured globals failed: %s", err)
	}
	if out.String() != "dumbo ada\n" {
		t.Fatalf("configured globals not loaded. got=%q", out.String())
	}
}

func TestRunKeepsPartialOutput(t *testing.T) {
	tmpl := writeTemp(t, "page.dumbo", "a{{ print 'b'; for i in 1 do endfor; }}c")

	a, out := newTestApp()
	if err := a.dispatch("run", []string{tmpl}); err == nil {
		t.Fatalf("expected an error")
	}
	if out.String() != "ab\n" {
		t.Fatalf("partial output wrong. want=%q, got=%q", "ab\n", out.String())
	}
}

func TestCommandErrors(t *testing.T) {
	tests := []struct {
		command string
		args    []string
	}{
		{"frobnicate", nil},
		{"run", nil},
		{"eval", nil},
		{"ast", nil},
		{"ast", []string{filepath.Join(t.TempDir(), "missing.dumbo")}},
		{"eval", []string{"print y;"}},
		{"mail", []string{"page.dumbo"}},
	}

	for _, tt := range tests {
		a, _ := newTestApp()
		if err := a.dispatch(tt.command, tt.args); err == nil {
			t.Errorf("%s %v: expected an error", tt.command, tt.args)
		}
	}
}

func TestOpenConstructs(t *testing.T) {
	tests := []struct {
		input    string
		expected int
	}{
		{"print 1;", 0},
		{"for i in (1, 2) do", 1},
		{"for i in (1, 2) do print i;\nendfor;", 0},
		{"if true do\nfor i in x do", 2},
		{"x := 'for';", 0},
	}

	for _, tt := range tests {
		if got := openConstructs(tt.input); got != tt.expected {
			t.Errorf("%q: want=%d, got=%d", tt.input, tt.expected, got)
		}
	}
}
