package compiler

import (
	"dumbo/pkg/object"
	"dumbo/pkg/symbol"
	"testing"
)

func TestAliasesAndCopies(t *testing.T) {
	tests := []compilerTestCase{
		{
			input:                "a := 'x'; b := a; a := 'y';",
			expectedInstructions: "0000 OpAssign a:STRING=x\n0001 OpAssign b:REFERENCE=&a\n0002 OpAssign a:STRING=y\n",
		},
		{
			// a would point at b, which points at a
			input:                "a := 1; b := a; a := b;",
			expectedInstructions: "0000 OpAssign a:INTEGER=1\n0001 OpAssign b:REFERENCE=&a\n0002 OpAssign a:INTEGER=1\n",
		},
		{
			input:                "a := 1; a := a;",
			expectedInstructions: "0000 OpAssign a:INTEGER=1\n0001 OpAssign a:INTEGER=1\n",
		},
		{
			input:                "a := 1; b := a; c := b; a := c;",
			expectedInstructions: "0000 OpAssign a:INTEGER=1\n0001 OpAssign b:REFERENCE=&a\n0002 OpAssign c:REFERENCE=&b\n0003 OpAssign a:INTEGER=1\n",
		},
	}

	runCompilerTests(t, tests)
}

func TestReassignmentIsSeenByLaterFolds(t *testing.T) {
	scope := symbol.New()
	compile(t, scope, "a := 1; a := 2; b := a + 1;")

	if names := scope.Names(); len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Fatalf("wrong names declared. got=%v", names)
	}
	b, err := scope.Resolve("b")
	if err != nil {
		t.Fatalf("resolve failed: %s", err)
	}
	if b.Value.Inspect() != "3" {
		t.Fatalf("b folded with a stale a. got=%s", b)
	}
}

func TestOuterNamesAreNotChangedWhileLowering(t *testing.T) {
	root := symbol.New()
	root.Define("x", object.Named("x", &object.Integer{Value: 1}))
	block := root.OpenChild()

	bytecode := compile(t, block, "print x; x := 2; y := x + 1;")

	expected := "0000 OpPrint __ANON__:REFERENCE=&x\n0001 OpAssign x:INTEGER=2\n0002 OpAssign y:INTEGER=3\n"
	if got := bytecode.Instructions.String(); got != expected {
		t.Fatalf("wrong instructions.\nwant=%q\ngot =%q", expected, got)
	}

	x, _ := root.Resolve("x")
	if x.Value.Inspect() != "1" {
		t.Fatalf("outer x changed while lowering. got=%s", x)
	}
	if names := block.Names(); len(names) != 1 || names[0] != "y" {
		t.Fatalf("wrong names in the block scope. got=%v", names)
	}
	if bytecode.Scope != block {
		t.Fatalf("bytecode scope is not the block scope")
	}
}

func TestSkippedBranchDoesNotFeedFolds(t *testing.T) {
	tests := []compilerTestCase{
		{
			input: "n := 1; if (false) do n := 5; endif; m := n + 1;",
			expectedInstructions: "0000 OpAssign n:INTEGER=1\n0001 OpIf __ANON__:BOOLEAN=false\n" +
				"0002 OpAssign n:INTEGER=5\n0003 OpEndIf\n0004 OpAssign m:INTEGER=2\n",
		},
		{
			input: "n := 1; if (true) do n := 5; endif; m := n + 1;",
			expectedInstructions: "0000 OpAssign n:INTEGER=1\n0001 OpIf __ANON__:BOOLEAN=true\n" +
				"0002 OpAssign n:INTEGER=5\n0003 OpEndIf\n0004 OpAssign m:INTEGER=6\n",
		},
		{
			// b still points at a when the branch is skipped
			input: "a := 1; b := a; if (false) do b := 2; endif; a := b;",
			expectedInstructions: "0000 OpAssign a:INTEGER=1\n0001 OpAssign b:REFERENCE=&a\n0002 OpIf __ANON__:BOOLEAN=false\n" +
				"0003 OpAssign b:INTEGER=2\n0004 OpEndIf\n0005 OpAssign a:INTEGER=1\n",
		},
	}

	runCompilerTests(t, tests)
}

func TestBranchLeavesValueUnknown(t *testing.T) {
	scope := symbol.New()
	bytecode := compile(t, scope, "a := 1; b := a; for f in (true, false) do if f do b := 2; endif; endfor; a := b; print a;")

	// whether a aliases b is only known when the assignment runs
	last := bytecode.Instructions[len(bytecode.Instructions)-2]
	if got := last.String(); got != "OpAssign a:REFERENCE=&b" {
		t.Fatalf("wrong assignment. got=%q", got)
	}
	b, _ := scope.Resolve("b")
	if b.Value.Inspect() != "&a" {
		t.Fatalf("b kept the value bound in the branch. got=%s", b)
	}
}

func TestEarlierNamesAreNotChangedWhileLowering(t *testing.T) {
	scope := symbol.New()
	compile(t, scope, "x := 2;")
	bytecode := compile(t, scope, "print x; x := 3; y := x + 1;")

	expected := "0000 OpPrint __ANON__:REFERENCE=&x\n0001 OpAssign x:INTEGER=3\n0002 OpAssign y:INTEGER=4\n"
	if got := bytecode.Instructions.String(); got != expected {
		t.Fatalf("wrong instructions.\nwant=%q\ngot =%q", expected, got)
	}
	x, _ := scope.Resolve("x")
	if x.Value.Inspect() != "2" {
		t.Fatalf("x changed while lowering. got=%s", x)
	}
}
