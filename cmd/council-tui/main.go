// ABOUTME: Terminal client for an LLM council backend
// ABOUTME: Readline-style loop that runs staged council turns and shows their progress live

package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/council-chat/internal/client"
	"github.com/2389/council-chat/internal/config"
	"github.com/2389/council-chat/internal/conversation"
	"github.com/2389/council-chat/internal/store"
	"github.com/2389/council-chat/internal/summaries"
	"github.com/2389/council-chat/internal/transcript"
	"github.com/2389/council-chat/internal/turn"
)

// version is set at build time.
var version = "dev"

const (
	progressWait    = 500 * time.Millisecond
	historyPageSize = 50
	turnsListed     = 20
)

func main() {
	configPath := flag.String("config", config.Path(), "Path to config file (.yaml or .toml)")
	server := flag.String("server", "", "Backend URL (overrides config)")
	convID := flag.String("conversation", "", "Conversation ID to open at startup")
	verbose := flag.Bool("verbose", false, "Show every stage in full after each turn")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *configPath, *server, *convID, *verbose); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nGoodbye!")
}

func run(ctx context.Context, configPath, server, convID string, verbose bool) error {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return err
	}
	if server != "" {
		cfg.Backend.URL = server
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("validating config: %w", err)
		}
	}

	logger := setupLogger(cfg.Logging, os.Stderr)
	slog.SetDefault(logger)

	token := getToken(cfg.Backend.Token)
	backend := client.New(cfg.Backend.URL, client.Options{
		Token:          token,
		RequestTimeout: cfg.Backend.RequestTimeout,
		Logger:         logger,
	})

	cache := summaries.New(backend, cfg.Summaries.RefreshTimeout, logger)
	defer cache.Wait()

	opts := conversation.Options{Cache: cache, Logger: logger}
	if cfg.Database.Path != "" {
		ledger, err := store.NewSQLiteStore(expandHome(cfg.Database.Path))
		if err != nil {
			return fmt.Errorf("opening ledger: %w", err)
		}
		defer ledger.Close()
		opts.Ledger = ledger
	}

	broadcaster := conversation.NewBroadcaster(logger)
	defer broadcaster.Close()
	opts.Broadcaster = broadcaster

	a := &app{
		svc:      conversation.New(backend, opts),
		cache:    cache,
		bc:       broadcaster,
		out:      os.Stdout,
		progress: newProgressPrinter(os.Stdout),
		verbose:  verbose,
		logger:   logger,
	}
	defer a.stopWatching()

	fmt.Printf("council-tui %s connected to %s\n", version, cfg.Backend.URL)
	fmt.Printf("Auth: %s\n", describeToken(token, time.Now()))
	if opts.Ledger != nil {
		fmt.Printf("Ledger: %s\n", cfg.Database.Path)
	}

	if err := cache.Refresh(ctx); err != nil {
		fmt.Printf("%s could not load conversations: %v\n", color.RedString("[error]"), err)
	}
	if convID != "" {
		if err := a.use(ctx, convID); err != nil {
			fmt.Printf("%s %v\n", color.RedString("[error]"), err)
		}
	} else {
		a.printList()
	}

	fmt.Println("Type a message and press Enter. /help for commands. Ctrl+C to quit.")
	fmt.Println()

	return a.loop(ctx, os.Stdin)
}

// app is the interactive session state.
type app struct {
	svc      *conversation.Service
	cache    *summaries.Cache
	bc       *conversation.Broadcaster
	out      io.Writer
	verbose  bool
	logger   *slog.Logger
	progress *progressPrinter

	mu          sync.Mutex // guards out and progress
	watchCancel context.CancelFunc

	historyCursor string               // next /history more page
	turns         []*store.LedgerEvent // last /turns listing
}

func (a *app) loop(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)

	for {
		if sess := a.svc.Current(); sess != nil {
			fmt.Fprintf(a.out, "[%s]> ", shortTitle(sess.Snapshot()))
		} else {
			fmt.Fprint(a.out, "> ")
		}

		// Read input with context awareness
		inputCh := make(chan string, 1)
		errCh := make(chan error, 1)

		go func() {
			if scanner.Scan() {
				inputCh <- scanner.Text()
			} else {
				if err := scanner.Err(); err != nil {
					errCh <- err
				} else {
					errCh <- io.EOF
				}
			}
		}()

		var input string
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		case input = <-inputCh:
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if input == "/quit" || input == "/exit" || input == "/q" {
			return nil
		}

		if err := a.dispatch(ctx, input); err != nil {
			a.printError(err)
		}
		fmt.Fprintln(a.out)
	}
}

func (a *app) dispatch(ctx context.Context, input string) error {
	cmd, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/help":
		a.printHelp()
		return nil
	case "/new":
		sess, err := a.svc.Create(ctx)
		if err != nil {
			return err
		}
		a.watch(sess.ID())
		fmt.Fprintf(a.out, "Created conversation %s\n", sess.ID())
		return nil
	case "/list":
		if err := a.cache.Refresh(ctx); err != nil {
			a.printError(fmt.Errorf("refreshing list: %w", err))
		}
		a.printList()
		return nil
	case "/use":
		if arg == "" {
			return errors.New("usage: /use <conversation id or list number>")
		}
		return a.use(ctx, arg)
	case "/show":
		return a.show(arg == "-v" || arg == "--verbose")
	case "/history":
		if arg == "more" {
			if a.historyCursor == "" {
				return errors.New("no more history; /history starts from the beginning")
			}
			return a.history(ctx, a.historyCursor)
		}
		return a.history(ctx, "")
	case "/turns":
		return a.listTurns(ctx)
	case "/turn":
		if arg == "" {
			return errors.New("usage: /turn <n> (numbers from /turns)")
		}
		return a.showTurn(ctx, arg)
	}

	if strings.HasPrefix(cmd, "/") {
		return fmt.Errorf("unknown command %s (try /help)", cmd)
	}
	return a.send(ctx, input)
}

func (a *app) printHelp() {
	fmt.Fprintln(a.out, "Commands:")
	fmt.Fprintln(a.out, "  /new           Start a new conversation")
	fmt.Fprintln(a.out, "  /list          List conversations")
	fmt.Fprintln(a.out, "  /use <id|n>    Open a conversation by ID or list number")
	fmt.Fprintln(a.out, "  /show [-v]     Show the last answer (-v: every stage)")
	fmt.Fprintln(a.out, "  /history       Show the turn ledger for this conversation")
	fmt.Fprintln(a.out, "  /history more  Show the next page of the ledger")
	fmt.Fprintln(a.out, "  /turns         List recent turns of this conversation")
	fmt.Fprintln(a.out, "  /turn <n>      Show every recorded event of a turn from /turns")
	fmt.Fprintln(a.out, "  /help          Show this help")
	fmt.Fprintln(a.out, "  /quit          Exit")
}

func (a *app) printError(err error) {
	fmt.Fprintf(a.out, "%s %v\n", color.RedString("[error]"), err)
}

func (a *app) printList() {
	list := a.cache.List()
	if len(list) == 0 {
		fmt.Fprintln(a.out, "No conversations yet. /new to start one.")
		return
	}

	currentID := ""
	if sess := a.svc.Current(); sess != nil {
		currentID = sess.ID()
	}

	header := "Conversations:"
	if a.cache.Stale() {
		header += dim.Sprint(" (counts may be out of date)")
	}
	fmt.Fprintln(a.out, header)
	for i, s := range list {
		marker := " "
		if s.ID == currentID {
			marker = "*"
		}
		title := s.Title
		if title == "" {
			title = "New Conversation"
		}
		fmt.Fprintf(a.out, "%s %2d. %s %s\n", marker, i+1, truncate(title, 50),
			dim.Sprintf("(%d messages, %s)", s.MessageCount, s.ID))
	}
}

// use opens a conversation by ID or by its position in the list.
func (a *app) use(ctx context.Context, ref string) error {
	id := ref
	if n, err := strconv.Atoi(ref); err == nil {
		list := a.cache.List()
		if n < 1 || n > len(list) {
			return fmt.Errorf("no conversation number %d", n)
		}
		id = list[n-1].ID
	}

	sess, err := a.svc.Select(ctx, id)
	if err != nil {
		return err
	}
	a.watch(sess.ID())

	a.mu.Lock()
	defer a.mu.Unlock()
	printTranscript(a.out, sess.Snapshot())
	return nil
}

func (a *app) show(verbose bool) error {
	sess := a.svc.Current()
	if sess == nil {
		return conversation.ErrNoConversation
	}
	snap := sess.Snapshot()
	for i := snap.Len() - 1; i >= 0; i-- {
		if msg := snap.Messages[i]; msg.IsAssistant() {
			a.mu.Lock()
			defer a.mu.Unlock()
			printAssistant(a.out, msg, verbose)
			return nil
		}
	}
	fmt.Fprintln(a.out, "No answers in this conversation yet")
	return nil
}

func (a *app) history(ctx context.Context, cursor string) error {
	page, err := a.svc.History(ctx, historyPageSize, cursor)
	if err != nil {
		return err
	}
	a.historyCursor = page.NextCursor
	if len(page.Events) == 0 {
		fmt.Fprintln(a.out, "No recorded turns")
		return nil
	}

	fmt.Fprintf(a.out, "Turn ledger (%d events):\n", len(page.Events))
	fmt.Fprintln(a.out, strings.Repeat("-", 60))
	for i := range page.Events {
		printLedgerEvent(a.out, &page.Events[i], false)
	}
	if page.HasMore {
		fmt.Fprintln(a.out, dim.Sprint("... more history available (/history more)"))
	}
	fmt.Fprintln(a.out, strings.Repeat("-", 60))
	return nil
}

func (a *app) listTurns(ctx context.Context) error {
	turns, err := a.svc.Turns(ctx, turnsListed)
	if err != nil {
		return err
	}
	a.turns = turns
	if len(turns) == 0 {
		fmt.Fprintln(a.out, "No recorded turns")
		return nil
	}

	fmt.Fprintln(a.out, "Recent turns:")
	for i, t := range turns {
		fmt.Fprintf(a.out, "  %2d. %s %s\n", i+1,
			dim.Sprint(t.Timestamp.Local().Format("Jan 02 15:04")),
			truncate(deref(t.Text), 60))
	}
	return nil
}

func (a *app) showTurn(ctx context.Context, ref string) error {
	n, err := strconv.Atoi(ref)
	if err != nil || n < 1 || n > len(a.turns) {
		return fmt.Errorf("no turn number %s (run /turns first)", ref)
	}

	events, err := a.svc.TurnEvents(ctx, a.turns[n-1].TurnID)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Turn %s (%d events):\n", dim.Sprint(a.turns[n-1].TurnID), len(events))
	for _, evt := range events {
		printLedgerEvent(a.out, evt, true)
	}
	return nil
}

func (a *app) send(ctx context.Context, content string) error {
	sess := a.svc.Current()
	if sess == nil {
		return errors.New("no conversation open: /new to start one or /use to pick one")
	}

	res, err := a.svc.Send(ctx, content)
	a.waitForProgress(sess)

	a.mu.Lock()
	defer a.mu.Unlock()

	if res.State == turn.StateCompleted {
		fmt.Fprintln(a.out)
		printAssistant(a.out, res.Assistant, a.verbose)
		return nil
	}
	if err != nil && res.TurnID == "" {
		// The turn never started
		return err
	}
	fmt.Fprintln(a.out, failure.Sprintf("[error] %s", res.Err))
	fmt.Fprintln(a.out, dim.Sprint("(your message was removed; send it again to retry)"))
	return nil
}

// watch follows the progress of turns on a conversation.
func (a *app) watch(conversationID string) {
	a.stopWatching()

	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := a.bc.Subscribe(ctx, conversationID)

	a.mu.Lock()
	a.watchCancel = cancel
	a.progress.reset()
	a.mu.Unlock()
	a.historyCursor = ""
	a.turns = nil

	go func() {
		for snap := range ch {
			a.mu.Lock()
			a.progress.observe(snap)
			a.mu.Unlock()
		}
	}()
}

func (a *app) stopWatching() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.watchCancel != nil {
		a.watchCancel()
		a.watchCancel = nil
	}
}

// waitForProgress lets the watcher catch up with the session's latest
// snapshot so progress lines print before the answer.
func (a *app) waitForProgress(sess *conversation.Session) {
	target := sess.Snapshot().Version
	deadline := time.Now().Add(progressWait)
	for time.Now().Before(deadline) {
		a.mu.Lock()
		caught := a.progress.version >= target
		a.mu.Unlock()
		if caught {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func shortTitle(snap *transcript.Snapshot) string {
	if snap.Title == "" {
		return truncate(snap.ConversationID, 12)
	}
	return truncate(snap.Title, 24)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// expandHome replaces a leading ~/ with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
