// Package main provides an interactive terminal conversation for wallroll.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/wallroll/internal/client"
	"github.com/thebtf/wallroll/internal/config"
	"github.com/thebtf/wallroll/internal/dialog"
	"github.com/thebtf/wallroll/internal/markup"
	"github.com/thebtf/wallroll/internal/prompts"
	"github.com/thebtf/wallroll/internal/session"
	"github.com/thebtf/wallroll/internal/worker"
)

// conversation is the chat backend the console talks to.
type conversation interface {
	Restart(ctx context.Context, chat string) (*worker.MessageResponse, error)
	Send(ctx context.Context, chat, text string) (*worker.MessageResponse, error)
	Clear(ctx context.Context, chat string) error
}

// local runs conversations in-process.
type local struct {
	manager *session.Manager
}

func (l local) Restart(ctx context.Context, chat string) (*worker.MessageResponse, error) {
	replies, err := l.manager.Restart(ctx, chat)
	if err != nil {
		return nil, err
	}
	return l.response(chat, replies), nil
}

func (l local) Send(ctx context.Context, chat, text string) (*worker.MessageResponse, error) {
	replies, err := l.manager.HandleMessage(ctx, chat, text)
	if err != nil {
		return nil, err
	}
	return l.response(chat, replies), nil
}

func (l local) Clear(ctx context.Context, chat string) error {
	return l.manager.Abandon(ctx, chat)
}

func (l local) response(chat string, replies []dialog.Reply) *worker.MessageResponse {
	resp := worker.NewMessageResponse(chat, replies, l.manager.Controller().Catalog().RestartButton())
	return &resp
}

func main() {
	messages := flag.String("messages", "", "YAML file overriding reply wording")
	plain := flag.Bool("plain", false, "Disable terminal styling")
	remote := flag.String("remote", "", "Talk to a running worker (host:port or URL, \"local\" for the configured port)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: *plain})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var conv conversation
	if *remote != "" {
		var c *client.Client
		if *remote == "local" {
			c = client.ForLocalWorker()
		} else {
			c = client.New(*remote)
		}
		if !c.IsRunning(ctx) {
			log.Fatal().Str("url", c.BaseURL()).Msg("Worker is not running")
		}
		log.Debug().Str("url", c.BaseURL()).Str("version", c.Version(ctx)).Msg("Connected to worker")
		conv = c
	} else {
		conv = local{manager: newLocalManager(*messages)}
	}

	render := markup.Terminal
	if *plain {
		render = markup.Plain
	}

	if err := run(ctx, os.Stdin, os.Stdout, conv, render); err != nil {
		log.Fatal().Err(err).Msg("Console stopped")
	}
}

func newLocalManager(messages string) *session.Manager {
	cfg, err := config.Load()
	if err != nil {
		cfg = config.Default()
	}
	if messages != "" {
		cfg.MessagesPath = messages
	}

	catalog, err := prompts.Load(cfg.MessagesPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.MessagesPath).Msg("Failed to load messages")
	}

	return session.NewManager(
		session.NewMemoryStore(session.MemoryConfig{TTL: cfg.SessionTTL}),
		dialog.NewController(dialog.Options{
			Catalog:       catalog,
			RestartTokens: cfg.RestartTokens,
			MaxOpenings:   cfg.MaxOpenings,
		}),
	)
}

// run drives one conversation over in/out until EOF or ctx is done.
func run(ctx context.Context, in io.Reader, out io.Writer, conv conversation, render func(string) string) error {
	chat := uuid.NewString()

	show := func(resp *worker.MessageResponse) {
		for _, r := range resp.Replies {
			fmt.Fprintln(out, render(r.Text))
			fmt.Fprintln(out)
		}
		if resp.RestartButton != "" {
			fmt.Fprintf(out, "[%s] /restart\n\n", resp.RestartButton)
		}
	}

	resp, err := conv.Restart(ctx, chat)
	if err != nil {
		return err
	}
	show(resp)

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		fmt.Fprint(out, "> ")
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case line, ok := <-lines:
			if !ok {
				fmt.Fprintln(out)
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			switch strings.TrimSpace(line) {
			case "":
				continue
			case "/quit", "/exit":
				return conv.Clear(ctx, chat)
			}
			resp, err := conv.Send(ctx, chat, line)
			if err != nil {
				return err
			}
			show(resp)
		}
	}
}
