package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/mitchellh/go-homedir"
	"github.com/peterh/liner"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/navpilot/cmd"
	"github.com/xkilldash9x/navpilot/internal/service"
)

const banner = `navpilot %s - interactive planner shell
Sessions live in the configured store for the lifetime of this shell.
Type "help" for commands, "exit" to quit.
`

var errShellExit = errors.New("exit")

// prompter is the subset of liner.State the shell needs.
type prompter interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
	Close() error
}

type linerPrompter struct {
	*liner.State
	historyPath string
}

func newLinerPrompter() *linerPrompter {
	state := liner.NewLiner()
	state.SetCtrlCAborts(true)
	state.SetCompleter(completeCommand)

	p := &linerPrompter{State: state}
	if home, err := homedir.Dir(); err == nil {
		p.historyPath = filepath.Join(home, ".navpilot_history")
		if f, err := os.Open(p.historyPath); err == nil {
			_, _ = state.ReadHistory(f)
			_ = f.Close()
		}
	}
	return p
}

func (p *linerPrompter) Close() error {
	if p.historyPath != "" {
		if f, err := os.Create(p.historyPath); err == nil {
			_, _ = p.WriteHistory(f)
			_ = f.Close()
		}
	}
	return p.State.Close()
}

func completeCommand(line string) []string {
	var out []string
	for _, c := range cmd.NewRootCommand(cmd.NewRuntime(nil)).Commands() {
		if strings.HasPrefix(c.Name(), line) {
			out = append(out, c.Name())
		}
	}
	return out
}

// runShell reads command lines until EOF or "exit". Components are built
// once; the expiry janitor and, when enabled, the metrics endpoint run in the
// background until the shell returns.
func runShell(ctx context.Context, rt *cmd.Runtime, p prompter, stdout, stderr io.Writer) (err error) {
	defer func() {
		if cerr := p.Close(); err == nil {
			err = cerr
		}
	}()

	if err := rt.LoadConfig(""); err != nil {
		return err
	}
	components, err := rt.Components(ctx)
	if err != nil {
		return err
	}
	logger := rt.Logger()

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	components.Janitor.Start()
	if mc := rt.Config().Metrics(); mc.Enabled && components.Metrics != nil {
		g.Go(func() error {
			return service.ServeMetrics(gctx, mc.Listen, components.Metrics.Handler(), logger)
		})
	}

	fmt.Fprintf(stdout, banner, cmd.Version)
	loopErr := readLoop(gctx, rt, p, stdout, stderr)

	cancel()
	if werr := g.Wait(); werr != nil && !errors.Is(werr, context.Canceled) {
		logger.Warn("Background task failed", zap.Error(werr))
	}
	if serr := rt.Close(context.Background()); serr != nil {
		logger.Warn("Shutdown reported errors", zap.Error(serr))
	}
	return loopErr
}

func readLoop(ctx context.Context, rt *cmd.Runtime, p prompter, stdout, stderr io.Writer) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := p.Prompt("navpilot > ")
		switch {
		case errors.Is(err, liner.ErrPromptAborted):
			continue
		case errors.Is(err, io.EOF):
			fmt.Fprintln(stdout)
			return nil
		case err != nil:
			return fmt.Errorf("failed to read input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		p.AppendHistory(line)

		if err := executeLine(ctx, rt, line, stdout, stderr); errors.Is(err, errShellExit) {
			return nil
		}
	}
}

// executeLine runs one command against a fresh command tree sharing rt.
// Errors and panics are reported without ending the shell.
func executeLine(ctx context.Context, rt *cmd.Runtime, line string, stdout, stderr io.Writer) (err error) {
	args, err := splitArgs(line)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return err
	}
	if len(args) == 1 && (args[0] == "exit" || args[0] == "quit") {
		return errShellExit
	}

	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(stderr, "Error: command panicked: %v\n", r)
			err = fmt.Errorf("command panicked: %v", r)
		}
	}()

	root := cmd.NewRootCommand(rt)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return err
	}
	return nil
}

// splitArgs splits a line on whitespace, honoring single and double quotes
// and backslash escapes outside single quotes.
func splitArgs(line string) ([]string, error) {
	var (
		args    []string
		cur     strings.Builder
		inArg   bool
		quote   rune
		escaped bool
	)
	for _, r := range line {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\' && quote != '\'':
			escaped, inArg = true, true
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote, inArg = r, true
		case unicode.IsSpace(r):
			if inArg {
				args = append(args, cur.String())
				cur.Reset()
				inArg = false
			}
		default:
			cur.WriteRune(r)
			inArg = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated %c quote", quote)
	}
	if escaped {
		return nil, errors.New("trailing backslash")
	}
	if inArg {
		args = append(args, cur.String())
	}
	return args, nil
}
