package main

import (
	"dumbo/pkg/ast"
	"fmt"
	"io"
	"strings"
)

type TemplateInsights struct {
	Blocks     []BlockInfo
	TextBytes  int
	Assigned   []string
	Referenced []string
}

type BlockInfo struct {
	Line       int
	Statements int
	Prints     int
	Loops      []string
	Conditions []string
}

func analyzeTemplate(tmpl *ast.Template) TemplateInsights {
	insights := TemplateInsights{}
	assigned := map[string]bool{}
	referenced := map[string]bool{}

	for _, part := range tmpl.Parts {
		if part.Text != nil {
			insights.TextBytes += len(*part.Text)
			continue
		}
		if part.Block == nil {
			continue
		}

		info := BlockInfo{Line: part.Pos.Line}
		walk(part.Block.Statements, func(stmt ast.Statement) {
			info.Statements++
			switch n := stmt.(type) {
			case *ast.PrintStatement:
				info.Prints++
				collectNames(n.Value, referenced, &insights.Referenced)
			case *ast.AssignStatement:
				if !assigned[n.Name] {
					assigned[n.Name] = true
					insights.Assigned = append(insights.Assigned, n.Name)
				}
				collectNames(n.Value, referenced, &insights.Referenced)
			case *ast.ForStatement:
				info.Loops = append(info.Loops, n.Iterator+" in "+n.Value.String())
				collectNames(n.Value, referenced, &insights.Referenced)
			case *ast.IfStatement:
				info.Conditions = append(info.Conditions, n.Condition.String())
				collectNames(n.Condition, referenced, &insights.Referenced)
			}
		})
		insights.Blocks = append(insights.Blocks, info)
	}
	return insights
}

func walk(stmts []*ast.Stmt, visitor func(ast.Statement)) {
	for _, s := range stmts {
		node := s.Node()
		if node == nil {
			continue
		}
		visitor(node)

		switch n := node.(type) {
		case *ast.ForStatement:
			walk(n.Body, visitor)
		case *ast.IfStatement:
			walk(n.Body, visitor)
		}
	}
}

// collectNames appends every variable read by expr to names, once.
func collectNames(expr *ast.BoolExpression, seen map[string]bool, names *[]string) {
	visitPrimaries(expr, func(p *ast.Primary) {
		if p.Variable != nil && !seen[*p.Variable] {
			seen[*p.Variable] = true
			*names = append(*names, *p.Variable)
		}
	})
}

func visitPrimaries(expr *ast.BoolExpression, visit func(*ast.Primary)) {
	conjunctions := append([]*ast.Conjunction{expr.Left}, expr.Right...)
	for _, c := range conjunctions {
		comparisons := append([]*ast.Comparison{c.Left}, c.Right...)
		for _, cmp := range comparisons {
			for _, se := range []*ast.StringExpression{cmp.Left, cmp.Right} {
				if se == nil {
					continue
				}
				for _, seg := range se.Segments {
					visitArithmetic(seg, visit)
				}
			}
		}
	}
}

func visitArithmetic(a *ast.Arithmetic, visit func(*ast.Primary)) {
	terms := []*ast.Term{a.Left}
	for _, r := range a.Right {
		terms = append(terms, r.Term)
	}
	for _, t := range terms {
		factors := []*ast.Unary{t.Left}
		for _, r := range t.Right {
			factors = append(factors, r.Factor)
		}
		for _, f := range factors {
			visit(f.Operand)
			if f.Operand.Group != nil {
				for _, item := range f.Operand.Group.Items {
					visitPrimaries(item, visit)
				}
			}
		}
	}
}

func printInsights(out io.Writer, insights TemplateInsights) {
	fmt.Fprintf(out, "Blocks (%d), %d bytes of text\n", len(insights.Blocks), insights.TextBytes)
	for i, b := range insights.Blocks {
		fmt.Fprintf(out, "  · block %d (line %d): %d statements, %d prints\n", i, b.Line, b.Statements, b.Prints)
		for _, l := range b.Loops {
			fmt.Fprintf(out, "      for %s\n", l)
		}
		for _, c := range b.Conditions {
			fmt.Fprintf(out, "      if %s\n", c)
		}
	}

	fmt.Fprintf(out, "Assigned (%d): %s\n", len(insights.Assigned), strings.Join(insights.Assigned, ", "))
	fmt.Fprintf(out, "Referenced (%d): %s\n", len(insights.Referenced), strings.Join(insights.Referenced, ", "))
}
