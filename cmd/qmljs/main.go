package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/peterh/liner"
	"github.com/rs/zerolog"

	"github.com/qtproject/qtjsbackend/pkg/config"
	"github.com/qtproject/qtjsbackend/pkg/driver"
)

const (
	historyFile = ".qmljs_history"
	promptMain  = "> "
	promptCont  = "... "
)

func main() {
	var (
		exprFlag     = flag.String("e", "", "Run the given expression and exit")
		qmlFlag      = flag.String("qml", "", "YAML file with the properties of the QML global")
		configFlag   = flag.String("config", "", "Path to a YAML configuration file")
		bytecodeFlag = flag.Bool("bytecode", false, "Show compiled bytecode before execution")
		logLevelFlag = flag.String("log-level", "", "Log level (overrides the config)")
	)
	flag.Parse()

	cfg := config.Default()
	if *configFlag != "" {
		var err error
		cfg, err = config.Load(*configFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(64)
		}
	}
	if *logLevelFlag != "" {
		if _, err := zerolog.ParseLevel(*logLevelFlag); err != nil {
			fmt.Fprintf(os.Stderr, "Error: -log-level: %v\n", err)
			os.Exit(64)
		}
		cfg.LogLevel = *logLevelFlag
	}
	qmlGlobal := cfg.QmlGlobal
	if *qmlFlag != "" {
		props, err := config.LoadQmlGlobal(*qmlFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(64)
		}
		qmlGlobal = props
	}

	opts := []driver.Option{driver.WithLogger(cfg.Logger(os.Stderr))}
	if cfg.MaxCallDepth > 0 {
		opts = append(opts, driver.WithMaxCallDepth(cfg.MaxCallDepth))
	}
	session, err := driver.NewSession(opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(70)
	}
	defer session.Close()

	options := driver.RunOptions{ShowBytecode: *bytecodeFlag, QmlGlobal: qmlGlobal}

	switch {
	case *exprFlag != "":
		options.Name = "<expr>"
		value, err := session.RunCode(*exprFlag, options)
		if !driver.DisplayResult(os.Stdout, *exprFlag, value, err) {
			session.Close()
			os.Exit(70)
		}
	case flag.NArg() > 1:
		fmt.Fprintf(os.Stderr, "Usage: qmljs [script] or qmljs -e \"expression\"\n")
		os.Exit(64)
	case flag.NArg() == 1:
		src, value, err := session.RunFile(flag.Arg(0), options)
		if !driver.DisplayResult(os.Stdout, src, value, err) {
			session.Close()
			os.Exit(70)
		}
	default:
		runRepl(session, qmlGlobal, *bytecodeFlag)
	}
}

// runRepl reads statements until EOF. One QML global object is shared by
// every line, so assignments to its properties persist.
func runRepl(session *driver.Session, qmlProps map[string]any, showBytecode bool) {
	ctx := session.Context
	var qml *driver.Object
	if qmlProps != nil {
		qml = ctx.ToValue(qmlProps).AsObject()
	}

	fmt.Println("qmljs (Ctrl+D to exit)")
	if qml != nil {
		fmt.Printf("QML global with %d properties\n", len(qmlProps))
	}

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigc)
	go func() {
		<-sigc
		ln.Close()
		os.Exit(130)
	}()

	for {
		code, ok := readStatement(ln)
		if !ok {
			fmt.Println()
			return
		}
		if strings.TrimSpace(code) == "" {
			continue
		}
		ln.AppendHistory(strings.ReplaceAll(code, "\n", " "))

		script, err := driver.Compile(ctx, code, driver.ScriptOptions{Name: "<repl>", QmlMode: qml != nil})
		if err != nil {
			driver.DisplayResult(os.Stdout, code, driver.Undefined(), err)
			continue
		}
		if showBytecode {
			fmt.Print(script.Disassemble())
		}
		value, err := script.Run(qml)
		driver.DisplayResult(os.Stdout, code, value, err)
	}
}

// readStatement reads lines until brackets balance.
func readStatement(ln *liner.State) (string, bool) {
	var b strings.Builder
	for {
		prompt := promptMain
		if b.Len() > 0 {
			prompt = promptCont
		}
		line, err := ln.Prompt(prompt)
		if errors.Is(err, io.EOF) {
			return "", false
		}
		if errors.Is(err, liner.ErrPromptAborted) {
			return "", true
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading input: %s\n", err)
			return "", false
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
		if bracketDepth(b.String()) <= 0 {
			return b.String(), true
		}
	}
}

// bracketDepth counts unclosed brackets outside string literals and
// comments.
func bracketDepth(src string) int {
	depth := 0
	var quote byte
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '/' && i+1 < len(src) && src[i+1] == '/':
			for i < len(src) && src[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < len(src) && src[i+1] == '*':
			end := strings.Index(src[i+2:], "*/")
			if end < 0 {
				return depth + 1
			}
			i += end + 3
		case c == '(' || c == '[' || c == '{':
			depth++
		case c == ')' || c == ']' || c == '}':
			depth--
		}
	}
	return depth
}
