package server

import (
	"context"
	"log"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"studybuddy/app/agent"
	"studybuddy/app/api"
	"studybuddy/app/middleware"
	"studybuddy/chunker"
	"studybuddy/ingest"
	"studybuddy/model"
	"studybuddy/session"
	"studybuddy/store"
	"studybuddy/types"
	"studybuddy/voice"

	"github.com/gofiber/fiber/v2"
)

var config = fiber.Config{
	ErrorHandler: api.ErrorHandler,
	BodyLimit:    64 * 1024 * 1024, // documents and audio come in through the body
}

type Server struct {
	cfg     types.Config
	logger  *slog.Logger
	app     *fiber.App
	cleanup func()
}

func NewServer(cfg types.Config) *Server {
	return &Server{
		cfg:    cfg,
		logger: slog.Default(),
	}
}

func (s *Server) Stop() {
	if s.app != nil {
		if err := s.app.Shutdown(); err != nil {
			s.logger.Error("error to shutdown server", "error", err.Error())
		}
	}
	if s.cleanup != nil {
		s.cleanup()
	}
	s.logger.Info("server stopped")
}

func (s *Server) Run() {
	ctx := context.Background()

	provider, err := model.NewProviderFromEnv()
	if err != nil {
		log.Fatal("error to configure model provider: ", err)
		return
	}
	s.logger.Info("model provider ready", "provider", provider.Name)

	factory, cleanup, err := store.NewFactoryFromConfig(ctx, s.cfg, store.ConnectFromEnv)
	if err != nil {
		log.Fatal("error to configure vector store: ", err)
		return
	}
	s.cleanup = cleanup

	splitter, err := chunker.New(s.cfg.ChunkSize, s.cfg.ChunkOverlap)
	if err != nil {
		log.Fatal("error to configure chunker: ", err)
		return
	}

	loader := ingest.NewLoader(ingest.NewParserClient(s.cfg.ParserURL))
	answerer := agent.New(provider.Embedder, provider.Generator, s.cfg.TopK, s.cfg.Temperature)
	manager := session.NewManager(loader, splitter, provider.Embedder, answerer, factory)

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	speaker := voice.NewSpeakerFromEnv(rng, os.Getenv("ELEVENLABS_API_KEY"))

	var recognizer *voice.Recognizer
	if os.Getenv("GOOGLE_SPEECH_CREDENTIALS_FILE") != "" || os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") != "" {
		recognizer, err = voice.NewRecognizer(ctx)
		if err != nil {
			s.logger.Warn("speech recognition unavailable", "error", err.Error())
			recognizer = nil
		}
	}

	var (
		app            = fiber.New(config)
		checkHandler   = api.NewCheckHandler()
		sessionHandler = api.NewSessionHandler(manager, speaker, recognizer)
		check          = app.Group("/check")
		apiv1          = app.Group("/api/v1")
	)
	s.app = app

	app.Use(middleware.PlugStatic("/static"))
	app.Static("/", "./public")

	check.Get("/healthy", checkHandler.HandleHealthy)

	apiv1.Post("/session", sessionHandler.HandleCreateSession)
	apiv1.Get("/session/:id", sessionHandler.HandleGetSession)
	apiv1.Post("/session/:id/name", sessionHandler.HandleSetName)
	apiv1.Post("/session/:id/documents", sessionHandler.HandleUploadDocuments)
	apiv1.Post("/session/:id/ask", sessionHandler.HandleAsk)
	apiv1.Post("/session/:id/ask/voice", sessionHandler.HandleAskVoice)
	apiv1.Get("/session/:id/history", sessionHandler.HandleGetHistory)
	apiv1.Put("/session/:id/voice", sessionHandler.HandleSetVoice)
	apiv1.Get("/voices", sessionHandler.HandleListVoices)
	apiv1.Post("/session/:id/reset", sessionHandler.HandleReset)

	if err := app.Listen(s.cfg.ServerAddr); err != nil {
		s.logger.Error("error to start server", "error", err.Error())
	}
}
