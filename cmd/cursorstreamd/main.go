// Command cursorstreamd captures the host desktop cursor and streams
// it to WebSocket and WebRTC observers.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/edaniels/golog"
	"go.uber.org/multierr"
	"go.viam.com/utils"
	"goji.io/pat"

	"github.com/edaniels/cursorstream"
	"github.com/edaniels/cursorstream/codec"
	"github.com/edaniels/cursorstream/codec/webp"
	"github.com/edaniels/cursorstream/pkg/platform"
	"github.com/edaniels/cursorstream/rtc"
)

func main() {
	address := flag.String("address", cursorstream.DefaultBindAddress, "address to listen on")
	formatName := flag.String("format", "lossy", "payload format (lossy|lossless)")
	quality := flag.Int("quality", cursorstream.DefaultQuality, "lossy quality 1-100; 0 means lossless")
	scale := flag.Float64("scale", 1, "capture scale factor")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	var logger golog.Logger
	if *debug {
		logger = golog.NewDevelopmentLogger("cursorstreamd")
		cursorstream.Debug = true
	} else {
		logger = golog.NewLogger("cursorstreamd")
	}

	format, err := codec.ParseFormat(*formatName)
	if err != nil {
		logger.Fatal(err)
	}
	cfg := cursorstream.Config{
		BindAddress:  *address,
		Format:       format,
		Quality:      *quality,
		CaptureScale: float32(*scale),
		Logger:       logger,
	}

	enc, err := webp.NewEncoder(cfg.Format, cfg.Quality, logger)
	if err != nil {
		logger.Fatal(err)
	}
	querier, err := platform.NewQuerier()
	if err != nil {
		logger.Fatal(err)
	}

	cache := cursorstream.NewCache()
	hub := cursorstream.NewHub(cache, cfg)
	capture := cursorstream.NewCaptureSource(querier, cache, enc, cfg)
	server := cursorstream.NewServer(hub, cfg)
	rtcServer := rtc.NewServer(hub, logger)
	server.Handle(pat.Post("/offer"), http.HandlerFunc(rtcServer.HandleOffer))

	done := make(chan struct{})
	utils.PanicCapturingGo(func() {
		defer close(done)
		hub.Run(capture.Messages())
	})

	if err := capture.Start(); err != nil {
		logger.Fatal(err)
	}
	if err := server.Start(); err != nil {
		logger.Fatal(err)
	}

	sig := make(chan os.Signal, 2)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")

	capture.Stop()
	<-done

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = multierr.Combine(
		server.Stop(ctx),
		rtcServer.Close(),
		hub.Close(),
		querier.Close(),
	)
	if err != nil {
		logger.Errorw("shutdown error", "error", err)
	}
}
