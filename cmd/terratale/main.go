// Terratale is a dual-modality assistant backend for the San San Pond Sak
// wetlands guide. For every websocket query it concurrently produces a
// written answer and a streamed spoken answer, and routes image requests to
// a visual search index.
//
// Configuration is loaded from an optional YAML file and TERRATALE_*
// environment variables. See internal/config for the full set of keys.
//
// Usage:
//
//	# Start with environment configuration
//	TERRATALE_GEMINI_API_KEY=... TERRATALE_DEEPGRAM_API_KEY=... terratale
//
//	# Start with a config file
//	terratale -config /etc/terratale/config.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	orchestration "github.com/terratale/terratale/core"
	"github.com/terratale/terratale/core/gateway/deepgram"
	"github.com/terratale/terratale/core/gateway/gemini"
	"github.com/terratale/terratale/core/knowledge"
	chromemstore "github.com/terratale/terratale/core/knowledge/chromem"
	"github.com/terratale/terratale/core/speech"
	"github.com/terratale/terratale/internal/config"
	"github.com/terratale/terratale/internal/logging"
	"github.com/terratale/terratale/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	logger, err := logging.New(*debug)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	geminiClient, err := gemini.NewClient(ctx, cfg.Gemini.APIKey,
		gemini.WithTextModel(cfg.Gemini.TextModel),
		gemini.WithClassifierModel(cfg.Gemini.ClassifierModel),
		gemini.WithAudioModel(cfg.Gemini.AudioModel),
		gemini.WithEmbeddingModel(cfg.Gemini.EmbeddingModel),
	)
	if err != nil {
		return err
	}

	synthesizer, err := deepgram.NewSynthesizer(cfg.Deepgram.APIKey, deepgram.WithVoice(cfg.Deepgram.Voice))
	if err != nil {
		return err
	}

	lexicon, err := speech.LoadLexicon(cfg.Speech.PronunciationPath)
	if err != nil {
		return err
	}
	logger.Info("loaded pronunciation lexicon", zap.Int("terms", lexicon.Len()))

	retriever, images, err := buildKnowledge(ctx, cfg, geminiClient, logger)
	if err != nil {
		return err
	}

	orchestrator := orchestration.NewOrchestrator(geminiClient, retriever, images,
		orchestration.WithCallTimeout(cfg.Timeouts.Call),
		orchestration.WithAudioStreamTimeout(cfg.Timeouts.AudioStream),
	)

	srv, err := server.NewServer(server.Deps{
		Supervisor:  orchestration.NewConnectionSupervisor(orchestrator),
		Synthesizer: synthesizer,
		TextGen:     geminiClient,
		Retriever:   retriever,
		Images:      images,
		Lexicon:     lexicon,
		CallTimeout: cfg.Timeouts.Call,
	}, logger, server.Config{Host: cfg.Server.Host, Port: cfg.Server.Port})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// buildKnowledge wires the retrieval backends. With a vector store path the
// corpus and image set are embedded and indexed on startup; without one the
// static corpus serves retrieval and image search reports its missing
// backend.
func buildKnowledge(ctx context.Context, cfg *config.Config, geminiClient *gemini.Client, logger *zap.Logger) (knowledge.ContextRetriever, knowledge.ImageSearcher, error) {
	if cfg.Knowledge.VectorStorePath == "" {
		logger.Info("no vector store configured, serving the static corpus")
		snapshot, err := knowledge.LoadSnapshot(cfg.Knowledge.CorpusPath)
		if err != nil {
			return nil, nil, err
		}
		return snapshot, knowledge.UnconfiguredImageSearcher{}, nil
	}

	store, err := chromemstore.NewStore(chromemstore.Config{
		Path:        cfg.Knowledge.VectorStorePath,
		Compress:    cfg.Knowledge.Compress,
		PassageTopK: cfg.Knowledge.PassageTopK,
		ImageTopK:   cfg.Knowledge.ImageTopK,
	}, geminiClient.EmbedText)
	if err != nil {
		return nil, nil, err
	}

	passages, err := knowledge.LoadPassages(cfg.Knowledge.CorpusPath)
	if err != nil {
		return nil, nil, err
	}
	imageSet, err := chromemstore.LoadImageSet(cfg.Knowledge.ImageSetPath)
	if err != nil {
		return nil, nil, err
	}

	if err := store.Seed(ctx, passages, imageSet); err != nil {
		return nil, nil, err
	}
	logger.Info("seeded vector store",
		zap.Int("passages", len(passages)),
		zap.Int("images", len(imageSet)),
	)

	return store, store, nil
}
