package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"chat-sync/backend/badgerstore"
	"chat-sync/backend/blobstore"
	"chat-sync/composer"
	"chat-sync/gate"
	"chat-sync/internal"
	"chat-sync/moderation"
	"chat-sync/notify"
	"chat-sync/observability"
	"chat-sync/presence"
	"chat-sync/projection"
	"chat-sync/session"
)

// Exit codes to provide meaningful status to the operating system or
// service manager.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	// The main function acts as a thin wrapper. Its only responsibility
	// is to call run() and handle the OS exit code.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "chat-sync terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the session lifecycle, and
// centralizes error reporting, so every defer (database cleanup
// included) executes before the program exits.
func run() (int, error) {
	_ = godotenv.Load()

	var config clientConfig
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := internal.ValidateRetention(config.RetentionWindow); err != nil {
		return exitConfig, err
	}
	charReplacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return exitConfig, err
	}

	logger := newLogger(config.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Backing store halves.
	records, err := badgerstore.Open(config.BadgerFilepath, logger)
	if err != nil {
		return exitRuntime, err
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = records.Close()
	}()

	blobs, err := blobstore.New(config.BlobFilepath, logger)
	if err != nil {
		return exitRuntime, err
	}

	index, err := projection.OpenIndex(config.BlugeFilepath)
	if err != nil {
		return exitRuntime, err
	}
	defer func() {
		logger.Info("Closing Bluge...")
		_ = index.Close()
	}()

	// Core components.
	profile := session.Profile{
		Identity:    config.Identity,
		UID:         uuid.NewString(),
		DisplayName: config.DisplayName,
		AvatarURL:   config.AvatarURL,
	}

	g := gate.New(logger, records, profile.Identity, profile.UID, profile.DisplayName, profile.AvatarURL)
	tracker := presence.New(logger, records, profile.Identity)
	messages := projection.New(logger, records, config.RetentionWindow, index)

	var censor *moderation.Censor
	if words := splitWords(config.CensorWords); len(words) > 0 {
		censor, err = moderation.NewCensor(words, charReplacement)
		if err != nil {
			return exitConfig, fmt.Errorf("censor: %w", err)
		}
	}

	coordinator := notify.NewCoordinator(logger, profile.Identity,
		notify.Shell{Title: "chat-sync", Icon: "icon.svg"},
		notify.Shell{Title: "chat-sync — new messages", Icon: "icon-alert.svg"},
	)
	monitor := observability.NewMonitor(logger)

	messages.AddSink(coordinator, monitor)
	g.AddSink(monitor)
	tracker.AddSink(monitor)

	sess, err := session.Start(ctx, logger, profile, g, tracker, messages, session.Options{
		MaxSubscriptionRetries: config.MaxSubscriptionRetries,
		TokenSecret:            []byte(config.SessionTokenSecret),
		TokenLifetime:          config.SessionTokenDuration,
	})
	if err != nil {
		return exitRuntime, err
	}

	// Composer and moderation are driven by the presentation layer;
	// they are built here so the shell gets fully wired handles.
	_ = composer.New(logger, records, blobs, g, censor, composer.Author{
		UID:      profile.UID,
		Identity: profile.Identity,
		Name:     profile.DisplayName,
		Avatar:   profile.AvatarURL,
	}, config.MaxBlobBytes)
	_ = moderation.NewController(logger, records, blobs, messages, g)

	go monitor.Listen(ctx, config.StatsInterval)

	logger.Info("chat-sync running", "identity", profile.Identity, "window", config.RetentionWindow)
	<-ctx.Done()

	signOutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sess.SignOut(signOutCtx); err != nil {
		logger.Error("sign-out failed", "error", err)
	}
	<-sess.Done()
	return exitOK, nil
}

// clientConfig extends the core config with the signed-in profile a
// headless client runs under.
type clientConfig struct {
	internal.Config
	Identity    string `env:"IDENTITY,required=true"`
	DisplayName string `env:"DISPLAY_NAME,required=true"`
	AvatarURL   string `env:"AVATAR_URL"`
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func splitWords(raw string) []string {
	var words []string
	for _, w := range strings.Split(raw, ",") {
		if w = strings.TrimSpace(w); w != "" {
			words = append(words, w)
		}
	}
	return words
}
