// Package main our entry point: a headless client that connects to a
// chat backend, loads the dashboard and logs inbound activity until
// interrupted.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mkrier/chatsync/internal/auth"
	"github.com/mkrier/chatsync/internal/chat"
	"github.com/mkrier/chatsync/internal/connection"
	"github.com/mkrier/chatsync/internal/rest"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("failed to load .env file: %+v", err)
	}

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.SetOutput(os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	baseURL := os.Getenv("API_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8000"
	}

	username := os.Getenv("CHAT_USERNAME")
	if username == "" {
		log.Fatal("CHAT_USERNAME environment variable is not set")
	}

	conn := connection.NewManager(baseURL)
	conn.SetSendLimiter(30, time.Minute)

	pull := rest.NewClient(baseURL)

	if raw := os.Getenv("ACCESS_TOKEN"); raw != "" {
		token, err := auth.ParseToken(raw)
		if err != nil {
			log.Fatalf("could not parse ACCESS_TOKEN: %v", err)
		}
		if token.Expired() {
			log.Fatal("ACCESS_TOKEN is expired")
		}
		conn.SetAuthToken(token.Raw())
		pull.SetToken(token)
	}

	session := chat.NewSession(conn, pull)
	session.OnChange(func() {
		log.Printf("state changed: %d chats, %d messages in active chat %q",
			len(session.Previews()), len(session.Messages()), session.ActiveChatID())
	})

	log.Println("Starting client...")

	if err := session.Connect(ctx, username); err != nil {
		log.Fatalf("failed to connect: %v", err)
	}

	if err := session.RefreshDashboard(ctx); err != nil {
		log.Printf("dashboard refresh failed, starting with an empty view: %v", err)
	}

	for _, p := range session.Previews() {
		log.Printf("chat %s (%s): %s", p.ChatID, p.ChatName, p.LastMessage)
	}

	<-ctx.Done()
	log.Printf("Shutdown signal received; shutting down...")

	session.Reset()
	log.Println("Client stopped")
}
