// cmd/client/main.go
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"beccaccino/internal/session"
	"beccaccino/internal/transport"
	"beccaccino/internal/ui"
)

const defaultServerURL = "ws://localhost:8080/ws"

func main() {
	// The terminal belongs to pterm; log lines would tear the prompts
	// apart, so they go to a file when requested and nowhere otherwise.
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	if path := os.Getenv("BECCACCINO_CLIENT_LOG"); path != "" {
		if f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			logger.SetOutput(f)
			logger.SetLevel(logrus.DebugLevel)
			defer f.Close()
		}
	}

	url := os.Getenv("BECCACCINO_SERVER_URL")
	if len(os.Args) > 1 {
		url = os.Args[1]
	}
	if url == "" {
		url = defaultServerURL
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var controller *session.Controller
	post := func(e session.Event) { controller.Post(e) }

	term := ui.NewTerminal(post)
	client := transport.NewClient(ctx, url, post, logger)
	controller = session.New(client, term, logger)

	term.Banner()
	controller.Run(ctx)
	client.Close()
}
