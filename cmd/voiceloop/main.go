package main

import (
	"context"
	"log"

	"github.com/pitabwire/frame"
	"github.com/pitabwire/frame/config"
	"github.com/pitabwire/frame/workerpool"
	"github.com/rs/xid"

	vlconfig "github.com/voiceloop/voiceloop/config"
	"github.com/voiceloop/voiceloop/internal/chat"
	"github.com/voiceloop/voiceloop/internal/gateway"
	"github.com/voiceloop/voiceloop/internal/tuning"
	"github.com/voiceloop/voiceloop/pkg/events"

	// Register transcription backends via init().
	_ "github.com/voiceloop/voiceloop/internal/transcribe/backends/deepgram"
	_ "github.com/voiceloop/voiceloop/internal/transcribe/backends/openai"
)

func main() {
	ctx := context.Background()

	cfg, err := config.LoadWithOIDC[vlconfig.VoiceloopConfig](ctx)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	eventRef := cfg.GetEventsQueueName()
	eventURL := cfg.GetEventsQueueURL()

	ctx, srv := frame.NewService(
		frame.WithConfig(&cfg),
		frame.WithName("voiceloop"),
		frame.WithDatastore(),
		frame.WithRegisterPublisher(eventRef, eventURL),
		frame.WithWorkerPoolOptions(
			workerpool.WithPoolCount(cfg.WorkerPoolCount),
			workerpool.WithSinglePoolCapacity(cfg.WorkerPoolCapacity),
		),
	)
	defer srv.Stop(ctx)

	pool, err := srv.WorkManager().GetPool()
	if err != nil {
		log.Fatalf("getting worker pool: %v", err)
	}

	// Unique per instance so the message subscriber can skip envelopes
	// this instance already persisted.
	instance := "voiceloop-" + xid.New().String()
	pub := events.NewPublisher(srv.QueueManager(), instance, eventRef)

	repo := chat.NewRepository(
		srv.DatastoreManager().GetPool(ctx, "__default__pool_name__"),
	)
	board := chat.NewBoard(repo, pub)

	profiles := tuning.NewLoader(cfg.ProfileDir)
	if _, err := profiles.LoadAll(); err != nil {
		log.Printf("warning: loading tuning profiles: %v", err)
	}
	go func() {
		if err := profiles.WatchAndReload(ctx.Done()); err != nil {
			log.Printf("warning: profile watcher stopped: %v", err)
		}
	}()

	manager := gateway.NewManager(gateway.Deps{
		Cfg:         &cfg,
		Profiles:    profiles,
		ProfileName: cfg.DefaultProfile,
		Board:       board,
		Publisher:   pub,
		Pool:        pool,
	})
	defer manager.CloseAll(ctx)

	handler := gateway.NewHandler(manager, pub, board, repo)

	msgSubscriber := &chat.Subscriber{Repo: repo, Self: instance}

	srv.Init(ctx,
		frame.WithRegisterSubscriber(eventRef+".messages", eventURL, msgSubscriber),
		frame.WithHTTPHandler(gateway.H2CHandler(handler.Routes())),
	)

	if err := srv.Run(ctx, ""); err != nil {
		log.Fatalf("service exited: %v", err)
	}
}
