package main

import (
	"dumbo/pkg/config"
	"dumbo/pkg/engine"
	"dumbo/pkg/lexer"
	"dumbo/pkg/mailer"
	"dumbo/pkg/parser"
	"dumbo/pkg/server"
	"dumbo/pkg/token"
	"dumbo/pkg/version"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	PROMPT      = ">>> "
	CONTINUE    = "... "
	historyFile = ".dumbo_history"
)

type app struct {
	cfg    *config.Config
	logger zerolog.Logger
	out    io.Writer
}

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stdout)
		os.Exit(0)
	}

	cfg, err := config.Load(os.Getenv("DUMBO_CONFIG"))
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "dumbo: %s\n", err)
		os.Exit(1)
	}

	logger := cfg.Logger(os.Stderr)
	zerolog.SetGlobalLevel(logger.GetLevel())
	log.Logger = logger

	a := &app{cfg: cfg, logger: logger, out: os.Stdout}
	if err := a.dispatch(os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "dumbo: %s\n", err)
		os.Exit(1)
	}
}

func (a *app) dispatch(command string, args []string) error {
	// Handle flags
	switch command {
	case "--version", "-v", "version":
		printVersion(a.out)
		return nil
	case "--help", "-h", "help":
		printHelp(a.out)
		return nil
	}

	// A bare template path is a shortcut for run
	if strings.HasSuffix(command, ".dumbo") {
		return a.run(append([]string{command}, args...))
	}

	switch command {
	case "run":
		return a.run(args)
	case "eval":
		if len(args) < 1 {
			return errors.New("usage: dumbo eval '<code>'")
		}
		return a.eval(args[0])
	case "repl":
		return a.repl()
	case "ast":
		return a.withTemplate("ast", args, a.printAST)
	case "tokens":
		return a.tokens(args)
	case "disasm":
		return a.disasm(args)
	case "inspect":
		return a.withTemplate("inspect", args, a.inspect)
	case "serve":
		return a.serve(args)
	case "mail":
		return a.mail(args)
	default:
		return fmt.Errorf("unknown command %q, run 'dumbo help' for usage", command)
	}
}

func printUsage(out io.Writer) {
	fmt.Fprintln(out, "Dumbo template language v"+version.Version)
	fmt.Fprintln(out, "\nUsage:")
	fmt.Fprintln(out, "  dumbo <file.dumbo>       Render a template")
	fmt.Fprintln(out, "  dumbo repl               Start interactive REPL")
	fmt.Fprintln(out, "  dumbo help               Show all commands")
}

func printVersion(out io.Writer) {
	fmt.Fprintf(out, "Dumbo %s\n", version.Version)
	fmt.Fprintf(out, "Build Date: %s\n", version.BuildDate)
	fmt.Fprintf(out, "Git Commit: %s\n", version.GitCommit)
}

func printHelp(out io.Writer) {
	fmt.Fprintln(out, "Dumbo: a small templating language")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Usage:")
	fmt.Fprintln(out, "  dumbo <file.dumbo>                     Render a template (shortcut for 'dumbo run')")
	fmt.Fprintln(out, "  dumbo run [-data f] [-vars f] <file>   Render a template with globals")
	fmt.Fprintln(out, "  dumbo eval '<code>'                    Run code without braces")
	fmt.Fprintln(out, "  dumbo repl                             Start the interactive REPL")
	fmt.Fprintln(out, "  dumbo ast <file>                       Print the parsed blocks")
	fmt.Fprintln(out, "  dumbo tokens <file>                    Print the token stream")
	fmt.Fprintln(out, "  dumbo disasm <file>                    Print the instructions of every block")
	fmt.Fprintln(out, "  dumbo inspect <file>                   Summarize blocks and variables")
	fmt.Fprintln(out, "  dumbo serve [-addr :8080]              Serve POST /render and /ws")
	fmt.Fprintln(out, "  dumbo mail -to a@b -subject s <file>   Render a template and mail it")
	fmt.Fprintln(out, "  dumbo version                          Display build metadata")
	fmt.Fprintln(out, "  dumbo help                             Show this help message")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Configuration is read from dumbo.toml (or $DUMBO_CONFIG), .env and DUMBO_* variables.")
}

// newEngine builds an engine seeded with the vars and data files, falling
// back to the configured ones.
func (a *app) newEngine(data, vars string) (*engine.Engine, error) {
	if data == "" {
		data = a.cfg.Data
	}
	if vars == "" {
		vars = a.cfg.Vars
	}

	e := engine.New(engine.WithLogger(a.logger))
	if vars != "" {
		if err := e.LoadVarsFile(vars); err != nil {
			return nil, err
		}
	}
	if data != "" {
		if err := e.LoadDataFile(data); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (a *app) run(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	data := fs.String("data", "", "data template whose blocks seed the globals")
	vars := fs.String("vars", "", "YAML file whose keys seed the globals")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return errors.New("usage: dumbo run [-data file] [-vars file] <file>")
	}

	e, err := a.newEngine(*data, *vars)
	if err != nil {
		return err
	}
	out, err := e.RenderFile(fs.Arg(0))
	io.WriteString(a.out, out)
	return err
}

func (a *app) eval(code string) error {
	e, err := a.newEngine("", "")
	if err != nil {
		return err
	}
	out, err := e.Exec(code)
	io.WriteString(a.out, out)
	return err
}

func (a *app) repl() error {
	e, err := a.newEngine("", "")
	if err != nil {
		return err
	}

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	if f, err := os.Open(histPath); err == nil {
		ln.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			ln.WriteHistory(f)
			f.Close()
		}
	}()

	fmt.Fprintf(a.out, "Dumbo REPL %s\n", version.Version)
	fmt.Fprintln(a.out, "Type statements without braces. :vars lists globals, :quit exits.")

	for {
		code, ok := readStatements(ln)
		if !ok {
			fmt.Fprintln(a.out)
			return nil
		}

		switch strings.TrimSpace(code) {
		case "":
			continue
		case ":quit":
			return nil
		case ":vars":
			for _, name := range e.Root().Names() {
				v, _ := e.Root().Resolve(name)
				fmt.Fprintln(a.out, v.String())
			}
			continue
		}

		ln.AppendHistory(strings.ReplaceAll(code, "\n", " "))
		out, err := e.Exec(code)
		io.WriteString(a.out, out)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %s\n", err)
		}
	}
}

// readStatements keeps prompting while a for or if is left open.
func readStatements(ln *liner.State) (string, bool) {
	var b strings.Builder
	for {
		prompt := PROMPT
		if b.Len() > 0 {
			prompt = CONTINUE
		}
		line, err := ln.Prompt(prompt)
		if err != nil {
			// EOF or Ctrl-C
			return "", false
		}

		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
		if openConstructs(b.String()) <= 0 {
			return b.String(), true
		}
	}
}

func openConstructs(code string) int {
	tokens, err := lexer.Tokenize(lexer.Code, "repl", code)
	if err != nil {
		return 0
	}
	depth := 0
	for _, t := range tokens {
		if t.Type != token.KEYWORD {
			continue
		}
		switch t.Literal {
		case "for", "if":
			depth++
		case "endfor", "endif":
			depth--
		}
	}
	return depth
}

func (a *app) withTemplate(command string, args []string, fn func(name, src string) error) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: dumbo %s <file>", command)
	}
	content, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read template: %w", err)
	}
	return fn(args[0], string(content))
}

func (a *app) printAST(name, src string) error {
	tmpl, err := parser.New().ParseTemplate(name, src)
	if err != nil {
		return err
	}
	for i, block := range tmpl.Blocks() {
		fmt.Fprintf(a.out, "block %d (%d:%d)\n", i, block.Pos.Line, block.Pos.Column)
		for _, stmt := range block.Statements {
			fmt.Fprintf(a.out, "  %s\n", stmt.String())
		}
	}
	return nil
}

func (a *app) inspect(name, src string) error {
	tmpl, err := parser.New().ParseTemplate(name, src)
	if err != nil {
		return err
	}
	printInsights(a.out, analyzeTemplate(tmpl))
	return nil
}

func (a *app) tokens(args []string) error {
	return a.withTemplate("tokens", args, func(name, src string) error {
		tokens, err := lexer.Tokenize(lexer.Template, name, src)
		for _, tok := range tokens {
			fmt.Fprintf(a.out, "%-12s %-24q (line %d, col %d)\n", tok.Type, tok.Literal, tok.Line, tok.Column)
		}
		return err
	})
}

func (a *app) disasm(args []string) error {
	fs := flag.NewFlagSet("disasm", flag.ContinueOnError)
	data := fs.String("data", "", "data template whose blocks seed the globals")
	vars := fs.String("vars", "", "YAML file whose keys seed the globals")
	if err := fs.Parse(args); err != nil {
		return err
	}

	return a.withTemplate("disasm", fs.Args(), func(name, src string) error {
		tmpl, err := parser.New().ParseTemplate(name, src)
		if err != nil {
			return err
		}
		e, err := a.newEngine(*data, *vars)
		if err != nil {
			return err
		}

		for i, block := range tmpl.Blocks() {
			scope := e.Root().OpenChild()
			bytecode, err := e.Compile(block, scope)
			e.Root().CloseChild(scope)
			if err != nil {
				return fmt.Errorf("block %d: %w", i, err)
			}
			fmt.Fprintf(a.out, "== block %d (%d:%d)\n", i, block.Pos.Line, block.Pos.Column)
			io.WriteString(a.out, bytecode.Instructions.String())
		}
		return nil
	})
}

func (a *app) serve(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("addr", a.cfg.Server.Addr, "listen address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	a.cfg.Server.Addr = *addr

	return server.New(a.cfg, server.WithLogger(a.logger)).ListenAndServe()
}

func (a *app) mail(args []string) error {
	fs := flag.NewFlagSet("mail", flag.ContinueOnError)
	to := fs.String("to", "", "recipient address")
	subject := fs.String("subject", "", "mail subject")
	data := fs.String("data", "", "data template whose blocks seed the globals")
	vars := fs.String("vars", "", "YAML file whose keys seed the globals")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *to == "" || fs.NArg() < 1 {
		return errors.New("usage: dumbo mail -to <address> [-subject s] <file>")
	}

	e, err := a.newEngine(*data, *vars)
	if err != nil {
		return err
	}
	body, err := e.RenderFile(fs.Arg(0))
	if err != nil {
		return err
	}

	if err := mailer.New(a.cfg.SMTP).Send(*to, *subject, body); err != nil {
		return err
	}
	a.logger.Info().Str("to", *to).Str("template", fs.Arg(0)).Msg("mail sent")
	return nil
}
