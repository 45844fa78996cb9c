package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dativo-io/warden/internal/access"
	"github.com/dativo-io/warden/internal/agent"
	"github.com/dativo-io/warden/internal/ats"
	"github.com/dativo-io/warden/internal/audit"
	"github.com/dativo-io/warden/internal/chat"
	"github.com/dativo-io/warden/internal/config"
	"github.com/dativo-io/warden/internal/confirm"
	"github.com/dativo-io/warden/internal/conversation"
	"github.com/dativo-io/warden/internal/llm"
	"github.com/dativo-io/warden/internal/pending"
	"github.com/dativo-io/warden/internal/ratelimit"
	"github.com/dativo-io/warden/internal/redact"
	"github.com/dativo-io/warden/internal/sanitize"
	"github.com/dativo-io/warden/internal/secrets"
	"github.com/dativo-io/warden/internal/server"
	"github.com/dativo-io/warden/internal/trigger"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Warden server: chat webhook, confirmation handling, digests",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides WARDEN_LISTEN_ADDR)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	if cfg.UsingDefaultSecretsKey() {
		log.Warn().Msg("Using generated default WARDEN_SECRETS_KEY; set it explicitly for production")
	}

	vault, err := secrets.NewVault(cfg.SecretsDBPath(), cfg.SecretsKey)
	if err != nil {
		return fmt.Errorf("initializing vault: %w", err)
	}
	defer vault.Close()

	atsKey, err := vault.GetOrEnv(ctx, secrets.NameATSAPIKey)
	if err != nil {
		return fmt.Errorf("resolving ATS API key: %w", err)
	}
	chatToken, err := vault.GetOrEnv(ctx, secrets.NameChatBotToken)
	if err != nil {
		return fmt.Errorf("resolving chat bot token: %w", err)
	}
	signingSecret, err := vault.GetOrEnv(ctx, secrets.NameChatSigningSecret)
	if err != nil {
		return fmt.Errorf("resolving chat signing secret: %w", err)
	}

	provider, model, err := buildProvider(ctx, cfg, vault)
	if err != nil {
		return err
	}

	auditStore, err := audit.NewStore(cfg.AuditDBPath())
	if err != nil {
		return fmt.Errorf("initializing audit store: %w", err)
	}
	defer auditStore.Close()

	sanitizer, err := sanitize.New()
	if err != nil {
		return fmt.Errorf("loading sanitizer patterns: %w", err)
	}
	redactor, err := redact.NewEngine()
	if err != nil {
		return fmt.Errorf("loading redaction policy: %w", err)
	}

	atsClient := ats.NewClient(atsKey)
	chatClient := chat.NewClient(chatToken)

	// Knowing our own chat identity lets the webhook drop the reactions we
	// seed on proposal replies. A failed lookup just means noisier acks.
	botUser, err := chatClient.AuthTest(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("chat_auth_test_failed")
	}
	pendings := pending.NewStore(cfg.PendingTTL)
	convos := conversation.NewStore(cfg.ConversationTTL, cfg.ConversationMax)
	limiter := ratelimit.NewLimiter(cfg.RateLimitCap, cfg.RateLimitWindow)

	controller, err := agent.NewController(agent.ControllerConfig{
		Provider:        provider,
		Model:           model,
		ATS:             atsClient,
		Gate:            access.NewGate(),
		Tier:            cfg.Tier,
		Redactor:        redactor,
		Sanitizer:       sanitizer,
		Limiter:         limiter,
		Conversations:   convos,
		Pending:         pendings,
		Chat:            chatClient,
		Auditor:         auditStore,
		AllowedChannels: cfg.AllowedChannels,
		AdminUsers:      cfg.AdminUsers,
		BatchLimit:      cfg.ToolBatchLimit,
	})
	if err != nil {
		return fmt.Errorf("building controller: %w", err)
	}

	coordinator := confirm.NewCoordinator(pendings, ats.NewExecutor(atsClient), chatClient, sanitizer, auditStore)

	scheduler := trigger.NewScheduler(atsClient, chatClient, cfg.DigestChannel)
	if cfg.DigestChannel != "" {
		if err := scheduler.Register(cfg.DigestSchedule); err != nil {
			return fmt.Errorf("registering digest: %w", err)
		}
	}
	scheduler.Start()
	defer scheduler.Stop()

	srv := server.NewServer(signingSecret, controller, coordinator, pendings,
		server.WithAuditStore(auditStore),
		server.WithBotUser(botUser),
		server.WithVersion(resolvedVersion()),
	)

	addr := cfg.ListenAddr
	if serveAddr != "" {
		addr = serveAddr
	}
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      srv.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info().
		Str("addr", addr).
		Str("tier", cfg.Tier.String()).
		Str("provider", provider.Name()).
		Int("cron_entries", scheduler.Entries()).
		Int("allowed_channels", len(cfg.AllowedChannels)).
		Msg("warden_serve_started")

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown_signal_received")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("server_stopped")
	return nil
}

// buildProvider resolves the configured LLM provider and model.
func buildProvider(ctx context.Context, cfg *config.Config, vault *secrets.Vault) (llm.Provider, string, error) {
	switch cfg.LLMProvider {
	case "anthropic":
		key, err := vault.GetOrEnv(ctx, secrets.NameAnthropicAPIKey)
		if err != nil {
			return nil, "", fmt.Errorf("resolving Anthropic API key: %w", err)
		}
		model := cfg.LLMModel
		if model == "" {
			model = llm.DefaultAnthropicModel
		}
		return llm.NewAnthropicProvider(key), model, nil

	case "openai":
		key, err := vault.GetOrEnv(ctx, secrets.NameOpenAIAPIKey)
		if err != nil {
			return nil, "", fmt.Errorf("resolving OpenAI API key: %w", err)
		}
		model := cfg.LLMModel
		if model == "" {
			model = llm.DefaultOpenAIModel
		}
		return llm.NewOpenAIProvider(key), model, nil
	}
	return nil, "", fmt.Errorf("unknown llm provider %q", cfg.LLMProvider)
}
