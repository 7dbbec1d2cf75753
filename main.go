package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"smartdesk/internal/config"
	"smartdesk/internal/core"
	"smartdesk/internal/logger"
	"smartdesk/internal/providers"
	"smartdesk/internal/reminder"
	"smartdesk/internal/router"
	"smartdesk/internal/secrets"
	"smartdesk/internal/storage"
)

const defaultSessionID = "default"

func main() {
	// .env is optional; real environments set variables directly.
	_ = godotenv.Load()

	cfg, err := config.Load(envOr("CONFIG_PATH", "config.yaml"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.Log); err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	log := logger.With("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("fatal")
	}
}

func run(ctx context.Context, cfg config.Config) error {
	log := logger.With("main")
	runID := uuid.NewString()
	log.Info().Str("run_id", runID).Str("persona", cfg.Persona.Name).Msg("starting smartdesk")

	sec, err := secrets.NewStore(cfg.SecretsFile)
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	llm, err := providers.NewLLM(ctx, cfg.LLM, sec)
	if err != nil {
		return err
	}

	var search router.SearchProvider
	if s, err := providers.NewSearch(cfg.Search, sec); err != nil {
		log.Warn().Msg("web search disabled: SERPER_API_KEY not configured")
	} else {
		search = s
	}

	ocr := providers.NewOCR(cfg.OCR, sec)

	var calendar *providers.Calendar
	tokens, err := secrets.NewTokenStore(cfg.DataDir)
	if err != nil {
		return err
	}
	if c, err := providers.NewCalendar(cfg.Calendar, sec, tokens); err != nil {
		log.Warn().Msg("calendar disabled: Google OAuth credentials not configured")
	} else {
		calendar = c
	}

	var calendarForRouter router.CalendarProvider
	if calendar != nil {
		calendarForRouter = calendar
	}
	rt := router.New(store, router.NewRuleClassifier(), llm, search, ocr, calendarForRouter, router.Config{
		Persona:       cfg.Persona,
		UserID:        defaultSessionID,
		ContextWindow: 10,
	})

	if calendar != nil && cfg.Persona.CalendarReminders && calendar.Connected(defaultSessionID) {
		poller := reminder.NewPoller(calendar, store, reminder.Config{
			SessionID: defaultSessionID,
			UserID:    defaultSessionID,
			Interval:  cfg.Calendar.PollInterval(),
			Window:    cfg.Calendar.ReminderWindow(),
		})
		go poller.Run(ctx)
		log.Info().Msg("calendar reminder agent started")
	}

	return repl(ctx, rt, store, calendar)
}

func openStore(ctx context.Context, cfg config.Config) (storage.Store, error) {
	policy := storage.PrunePolicy{
		MaxMessages: cfg.Persona.MemoryLimit,
		MaxAge:      cfg.Store.SessionTTL(),
	}
	switch cfg.Store.Backend {
	case "memory":
		return storage.NewMemoryStore(policy), nil
	case "redis":
		return storage.NewRedisStore(ctx, cfg.Store.RedisURL, cfg.Store.SessionTTL(), policy)
	default:
		return storage.NewSQLiteStore(cfg.Store.Path, policy)
	}
}

func repl(ctx context.Context, rt *router.Router, store storage.Store, calendar *providers.Calendar) error {
	fmt.Println("SmartDesk ready. Type a message, or /help for commands.")

	searchMode := false
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		msg := core.Message{Text: line, SearchMode: searchMode}
		searchMode = false

		switch {
		case line == "/quit" || line == "/exit":
			return nil
		case line == "/help":
			printHelp()
			continue
		case line == "/web":
			searchMode = true
			fmt.Println("Web search enabled for your next message.")
			continue
		case line == "/history":
			printHistory(ctx, store)
			continue
		case line == "/clear":
			if err := store.Clear(ctx, defaultSessionID); err != nil {
				fmt.Printf("Could not clear memory: %v\n", err)
			} else {
				fmt.Println("Conversation memory cleared.")
			}
			continue
		case line == "/connect":
			connectCalendar(ctx, scanner, calendar)
			continue
		case line == "/disconnect":
			if calendar != nil {
				if err := calendar.Disconnect(defaultSessionID); err != nil {
					fmt.Printf("Disconnect failed: %v\n", err)
				} else {
					fmt.Println("Calendar disconnected.")
				}
			}
			continue
		case line == "/calendar":
			// Bare command maps to a calendar query.
			msg.Text = "show my calendar"
		case strings.HasPrefix(line, "/file "):
			var ok bool
			msg, ok = fileMessage(strings.TrimPrefix(line, "/file "))
			if !ok {
				continue
			}
		}

		out, err := rt.Route(ctx, defaultSessionID, msg)
		switch {
		case errors.Is(err, router.ErrBusy):
			fmt.Println("Still working on the previous request, one moment.")
			continue
		case err != nil:
			fmt.Printf("Something went wrong: %v\n", err)
			continue
		}
		fmt.Printf("\n%s\n\n", out.Reply.Text)
	}
	return scanner.Err()
}

// fileMessage builds a message with one attachment from "/file <path> [question]".
func fileMessage(args string) (core.Message, bool) {
	parts := strings.SplitN(strings.TrimSpace(args), " ", 2)
	path := parts[0]
	question := ""
	if len(parts) == 2 {
		question = strings.TrimSpace(parts[1])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Printf("Could not read %s: %v\n", path, err)
		return core.Message{}, false
	}
	return core.Message{
		Text: question,
		Attachments: []core.Attachment{{
			Name: filepath.Base(path),
			MIME: mime.TypeByExtension(filepath.Ext(path)),
			Data: data,
		}},
	}, true
}

func connectCalendar(ctx context.Context, scanner *bufio.Scanner, calendar *providers.Calendar) {
	if calendar == nil {
		fmt.Println("Calendar is not configured. Set GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET.")
		return
	}
	authURL, _, err := calendar.AuthURL()
	if err != nil {
		fmt.Printf("Could not start authorization: %v\n", err)
		return
	}
	fmt.Printf("Open this URL to authorize calendar access:\n\n  %s\n\nPaste the authorization code: ", authURL)
	if !scanner.Scan() {
		return
	}
	code := strings.TrimSpace(scanner.Text())
	if code == "" {
		return
	}
	if err := calendar.Connect(ctx, defaultSessionID, code); err != nil {
		fmt.Printf("Calendar connection failed: %v\n", err)
		return
	}
	fmt.Println("Calendar connected.")
}

func printHistory(ctx context.Context, store storage.Store) {
	msgs, err := store.Recent(ctx, defaultSessionID, 20)
	if err != nil {
		fmt.Printf("Could not load history: %v\n", err)
		return
	}
	for _, m := range msgs {
		fmt.Printf("[%s] %s: %s\n", m.Timestamp.Format("15:04"), m.Role, m.Text)
	}
}

func printHelp() {
	fmt.Print(`Commands:
  /search <query>   search the web
  /web              enable web search for the next message
  /file <path> [q]  upload a file (image, PDF or text), optionally with a question
  /calendar         show upcoming events
  /connect          connect Google Calendar
  /disconnect       disconnect Google Calendar
  /history          show recent conversation
  /clear            clear conversation memory
  /quit             exit
`)
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
