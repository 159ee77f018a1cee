package vm

import (
	"bytes"
	"dumbo/pkg/compiler"
	"dumbo/pkg/object"
	"dumbo/pkg/parser"
	"dumbo/pkg/symbol"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type vmTestCase struct {
	input    string
	expected string
}

func TestPrint(t *testing.T) {
	tests := []vmTestCase{
		{`a := 'test'; print a;`, "test\n"},
		{`print 'a' . 'b' . 'c';`, "a b c\n"},
		{`print 1 + 2 * 3;`, "7\n"},
		{`print -7 / 2;`, "-3\n"},
		{`print (1, 'x', true);`, "(1,x,true)\n"},
		{`n := 2; print 'n is' . n . (n > 1);`, "n is 2 true\n"},
		{`a := 'x'; b := a; a := 'y'; print b;`, "y\n"},
		{`a := 'x'; b := a; c := b; print c; a := 'z'; print c;`, "x\nz\n"},
		{`a := 1; b := a; a := b; print a; print b;`, "1\n1\n"},
		{`l := ('a', 'b'); m := l; print m;`, "(a,b)\n"},
		{`s := 'a' . 'b'; print s . 'c';`, "a b c\n"},
	}

	runVmTests(t, tests)
}

func TestConditionals(t *testing.T) {
	tests := []vmTestCase{
		{`if (false) do print 'x'; endif;`, ""},
		{`if (true) do print 'x'; endif;`, "x\n"},
		{`ok := 1 < 2; if ok do print 'yes'; endif; print 'after';`, "yes\nafter\n"},
		{`ok := false; if ok and true do print 'no'; endif; print 'after';`, "after\n"},
		{`if 'a' = 'a' do print 'first'; endif; if 1 = 2 do print 'second'; endif;`, "first\n"},
	}

	runVmTests(t, tests)
}

func TestLoops(t *testing.T) {
	tests := []vmTestCase{
		{`for i in ('a', 'b', 'c') do print i; endfor;`, "a\nb\nc\n"},
		{`l := (1, 2); for i in l do print i; endfor; print 'done';`, "1\n2\ndone\n"},
		{`for i in (1, 2) do print 'x'; endfor; for i in (3, 4) do print i; endfor;`, "x\nx\n3\n4\n"},
		{`for i in ('a', 'b') do x := i; print x . '!'; endfor;`, "a !\nb !\n"},
		{`n := 'none'; for i in ('a', 'b') do n := i; endfor; print n;`, "b\n"},
		{`a := 'x'; for i in (a, 'y') do print i; endfor;`, "x\ny\n"},
		{`for i in (1, 2) do if true do print i; endif; endfor;`, "1\n2\n"},
		{`if true do for i in (1, 2) do print i; endfor; endif;`, "1\n2\n"},
	}

	runVmTests(t, tests)
}

func TestLoopBodyRunsOncePerElement(t *testing.T) {
	for n := 2; n <= 6; n++ {
		items := make([]string, n)
		for i := range items {
			items[i] = "'e'"
		}
		input := "for i in (" + strings.Join(items, ", ") + ") do print i; endfor;"

		out, err := run(t, symbol.New(), input)
		if err != nil {
			t.Fatalf("%q: vm error: %s", input, err)
		}
		if got := strings.Count(out, "e\n"); got != n {
			t.Fatalf("%q: body ran %d times, want=%d", input, got, n)
		}
	}
}

func TestCursorIsResetAfterLoop(t *testing.T) {
	scope := symbol.New()
	bytecode := compileInput(t, scope, `for i in ('a', 'b', 'c') do print i; endfor;`)

	machine := New(bytecode)
	if err := machine.Run(); err != nil {
		t.Fatalf("vm error: %s", err)
	}

	loop := bytecode.Instructions[0].Scope
	i, err := loop.Resolve("i")
	if err != nil {
		t.Fatalf("resolve failed: %s", err)
	}
	it := i.Value.(*object.Iterable)
	if it.Cursor() != 0 {
		t.Fatalf("cursor not reset. got=%d", it.Cursor())
	}
	if machine.Scope() != scope {
		t.Fatalf("vm did not leave the loop scope")
	}
}

func TestEmptyLoop(t *testing.T) {
	scope := symbol.New()
	scope.Define("empty", object.Named("empty", &object.List{}))

	out, err := run(t, scope, `print 'before'; for i in empty do print i; endfor; print 'after';`)
	if err != nil {
		t.Fatalf("vm error: %s", err)
	}
	if out != "before\nafter\n" {
		t.Fatalf("wrong output. want=%q, got=%q", "before\nafter\n", out)
	}
}

func TestRuntimeErrors(t *testing.T) {
	tests := []struct {
		input    string
		expected error
		output   string
	}{
		{`print 'a'; s := 'abc'; for i in s do print i; endfor;`, ErrNotIterable, "a\n"},
		{`for i in 5 do print i; endfor;`, ErrNotIterable, ""},
		{`print 'a'; if 1 do print 'b'; endif;`, object.ErrTypeMismatch, "a\n"},
		{`x := 'x'; if x do endif;`, object.ErrTypeMismatch, ""},
	}

	for _, tt := range tests {
		out, err := run(t, symbol.New(), tt.input)
		if !errors.Is(err, tt.expected) {
			t.Fatalf("%q: wrong error. want=%v, got=%v", tt.input, tt.expected, err)
		}
		if out != tt.output {
			t.Fatalf("%q: partial output wrong. want=%q, got=%q", tt.input, tt.output, out)
		}
	}
}

func TestNotIterableNamesTheVariable(t *testing.T) {
	_, err := run(t, symbol.New(), `s := 'abc'; for i in s do endfor;`)
	if err == nil || !strings.Contains(err.Error(), "s is STRING") {
		t.Fatalf("error does not name the variable. got=%v", err)
	}
}

func TestLoopVariableAliasOutlivesLoop(t *testing.T) {
	out, err := run(t, symbol.New(), `last := ''; for i in ('a', 'b') do last := i; endfor; print last;`)
	if err != nil {
		t.Fatalf("vm error: %s", err)
	}
	if out != "b\n" {
		t.Fatalf("wrong output. want=%q, got=%q", "b\n", out)
	}
}

func TestBranchesAndLaterFolds(t *testing.T) {
	tests := []vmTestCase{
		{`n := 1; if (false) do n := 5; endif; m := n + 1; print n; print m;`, "1\n2\n"},
		{`n := 1; if (true) do n := 5; endif; m := n + 1; print n; print m;`, "5\n6\n"},
		{`n := 1; for f in (true, false) do if (f) do n := 5; endif; endfor; print n;`, "5\n"},
		{`n := 1; for f in (false, false) do if (f) do n := 5; endif; endfor; print n;`, "1\n"},
		{`if (false) do k := 'set'; endif; print k;`, "set\n"},
	}

	runVmTests(t, tests)
}

func TestAliasCycleThroughSkippedBranch(t *testing.T) {
	tests := []vmTestCase{
		{`a := 1; b := a; if (false) do b := 2; endif; a := b; print a;`, "1\n"},
		{`a := 1; b := a; for f in (true, false) do if (f) do b := 2; endif; endfor; a := b; print a;`, "2\n"},
		{`a := 1; b := a; for f in (false, false) do if (f) do b := 2; endif; endfor; a := b; print a; print b;`, "1\n1\n"},
		{`a := 1; b := a; for f in (false, false) do if (f) do b := 2; endif; endfor; a := b; a := 3; print b;`, "3\n"},
	}

	for _, tt := range tests {
		machine := New(compileInput(t, symbol.New(), tt.input))
		done := make(chan error, 1)
		go func() { done <- machine.Run() }()

		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("%q: vm error: %s", tt.input, err)
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("%q: vm did not finish", tt.input)
		}
		if out := machine.Output(); out != tt.expected {
			t.Errorf("%q: wrong output. want=%q, got=%q", tt.input, tt.expected, out)
		}
	}
}

func TestAliasOfLoopLocalKeepsValue(t *testing.T) {
	tests := []vmTestCase{
		{`n := 0; for i in (1, 2) do n := i; endfor; print n;`, "2\n"},
		{`n := ''; for i in (1, 2) do t := i . 'x'; n := t; endfor; print n;`, "2 x\n"},
		{`n := 0; for i in (1, 2) do t := 7; n := t; endfor; print n;`, "7\n"},
	}

	runVmTests(t, tests)
}

func TestTraceLogsEveryStep(t *testing.T) {
	level := zerolog.GlobalLevel()
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
	t.Cleanup(func() { zerolog.SetGlobalLevel(level) })

	var buf bytes.Buffer
	bytecode := compileInput(t, symbol.New(), `for i in (1, 2) do print i; endfor;`)

	machine := New(bytecode, WithLogger(zerolog.New(&buf).Level(zerolog.TraceLevel)))
	if err := machine.Run(); err != nil {
		t.Fatalf("vm error: %s", err)
	}

	// start, print, end, print, end
	if got := strings.Count(buf.String(), `"message":"step"`); got != 5 {
		t.Fatalf("wrong number of steps traced. want=5, got=%d\n%s", got, buf.String())
	}
}

func TestReset(t *testing.T) {
	bytecode := compileInput(t, symbol.New(), `print 'once';`)
	machine := New(bytecode)
	for i := 0; i < 2; i++ {
		machine.Reset(bytecode)
		if err := machine.Run(); err != nil {
			t.Fatalf("vm error: %s", err)
		}
		if machine.Output() != "once\n" {
			t.Fatalf("output kept across resets. got=%q", machine.Output())
		}
	}
}

func runVmTests(t *testing.T, tests []vmTestCase) {
	t.Helper()

	for _, tt := range tests {
		out, err := run(t, symbol.New(), tt.input)
		if err != nil {
			t.Fatalf("%q: vm error: %s", tt.input, err)
		}
		if out != tt.expected {
			t.Errorf("%q: wrong output. want=%q, got=%q", tt.input, tt.expected, out)
		}
	}
}

func run(t *testing.T, scope *symbol.Table, input string) (string, error) {
	t.Helper()

	machine := New(compileInput(t, scope, input))
	err := machine.Run()
	return machine.Output(), err
}

func compileInput(t *testing.T, scope *symbol.Table, input string) *compiler.Bytecode {
	t.Helper()

	program, err := parser.New().ParseProgram("test", input)
	if err != nil {
		t.Fatalf("parse error: %s", err)
	}
	comp := compiler.New(scope)
	if err := comp.Compile(program); err != nil {
		t.Fatalf("compiler error: %s", err)
	}
	return comp.Bytecode()
}
