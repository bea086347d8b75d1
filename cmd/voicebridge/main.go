package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gordonklaus/portaudio"

	"github.com/conversalabs/voicebridge/internal/audio"
	"github.com/conversalabs/voicebridge/internal/config"
	"github.com/conversalabs/voicebridge/internal/logger"
	"github.com/conversalabs/voicebridge/internal/playback"
	"github.com/conversalabs/voicebridge/internal/session"
	"github.com/conversalabs/voicebridge/internal/storage"
	"github.com/conversalabs/voicebridge/internal/transport"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, warnings, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "voicebridge: %v\n", err)
		os.Exit(1)
	}

	logg, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "voicebridge: logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logg.Sync() }()

	for _, w := range warnings {
		logg.Warn(w)
	}

	store, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		logg.Fatalw("storage init failed", "error", err)
	}
	defer func() { _ = store.Close() }()

	if err := portaudio.Initialize(); err != nil {
		logg.Fatalw("audio init failed", "error", err)
	}
	defer func() { _ = portaudio.Terminate() }()

	mic, err := audio.NewMic(cfg.SampleRate, cfg.FrameSamples)
	if err != nil {
		logg.Fatalw("microphone unavailable", "error", err)
	}

	speaker, err := audio.NewSpeaker(cfg.SampleRate, cfg.FrameSamples)
	if err != nil {
		logg.Fatalw("speaker unavailable", "error", err)
	}
	defer func() { _ = speaker.Close() }()

	queue := playback.NewQueue(logg, speaker)
	view := newConsoleView(os.Stdout, cfg.CalLink)

	// The capture sink closes over the transport, which in turn needs the
	// session as its event handler. tr is assigned before capture starts.
	var tr *transport.Transport
	capture := audio.NewCapture(logg, mic, func(pcm []byte) { tr.SendAudio(pcm) })

	sess := session.New(logg, capture, queue, store, view, cfg.Suggestions, cfg.ParsedSuggestionDelay())
	tr = transport.New(logg, transport.GorillaDialer{}, transport.Config{
		ControlURL:    cfg.ControlURL(),
		TranscriptURL: cfg.TranscriptURL,
		SampleRate:    cfg.SampleRate,
		TTSProvider:   cfg.TTSProvider,
	}, sess)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sess.Start(ctx, tr); err != nil {
		logg.Fatalw("session start failed", "error", err)
	}

	view.Notice("Connected. Speak, or type a message and press enter. Commands: /mute /unmute /end")

	done := make(chan struct{})
	go func() {
		defer close(done)
		readCommands(sess, view)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sig:
	case <-done:
	}

	logg.Info("shutting down")
	sess.End()
}

// readCommands drives the session from stdin until /end or EOF.
func readCommands(sess *session.Session, view *consoleView) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
		case "/end":
			return
		case "/mute":
			sess.SetMuted(true)
			view.Notice("Microphone muted")
		case "/unmute":
			sess.SetMuted(false)
			view.Notice("Microphone live")
		default:
			_ = sess.SendText(line)
		}
	}
}
