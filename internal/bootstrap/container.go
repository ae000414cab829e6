package bootstrap

import (
	"bitcoin-gpt-client/internal/api"
	"bitcoin-gpt-client/internal/config"
	"bitcoin-gpt-client/internal/pkg/logger"
	"bitcoin-gpt-client/internal/service"
	"bitcoin-gpt-client/internal/store"
)

type Container struct {
	Config      *config.Config
	Logger      logger.ILogger
	Credentials *store.CredentialStore
	Backend     *api.Client

	AuthService    *service.AuthService
	SessionService *service.SessionService
	ChatService    *service.ChatService
}

func NewContainer(cfg *config.Config) (*Container, error) {
	// 1. Core Facades
	zapLog := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")

	creds, err := store.NewCredentialStore(cfg.App.CredentialDBPath)
	if err != nil {
		return nil, err
	}

	backend := api.NewClient(cfg.Backend.BaseURL, cfg.Backend.RequestTimeout, creds)

	// 2. Services
	authService := service.NewAuthService(backend, creds, zapLog)
	sessionService := service.NewSessionService(backend, zapLog)
	chatService := service.NewChatService(backend, sessionService, creds, zapLog)

	// Logout wipes everything session-scoped in one place.
	authService.OnLoggedOut(sessionService.Reset)
	authService.OnLoggedOut(chatService.Reset)

	return &Container{
		Config:         cfg,
		Logger:         zapLog,
		Credentials:    creds,
		Backend:        backend,
		AuthService:    authService,
		SessionService: sessionService,
		ChatService:    chatService,
	}, nil
}

func (c *Container) Close() {
	_ = c.Logger.Sync()
	_ = c.Credentials.Close()
}
