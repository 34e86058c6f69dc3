package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/caarlos0/env/v11"

	"mediai-backend/cmd"
	"mediai-backend/internal/analysis"
	"mediai-backend/internal/cache"
	"mediai-backend/internal/database"
	"mediai-backend/internal/llm"
	"mediai-backend/internal/messaging"
	"mediai-backend/internal/notifications"
)

type WorkerConfig struct {
	DatabaseURL   string `env:"DATABASE_URL,notEmpty,required"`
	RabbitMQURL   string `env:"RABBITMQ_URL,notEmpty,required"`
	RedisAddr     string `env:"REDIS_ADDR,notEmpty,required"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	OpenAIKey     string  `env:"OPENAI_API_KEY,notEmpty,required"`
	GoogleKey     string  `env:"GOOGLE_API_KEY,notEmpty,required"`
	AnthropicKey  string  `env:"ANTHROPIC_API_KEY"`
	GPT4Model     string  `env:"GPT4_MODEL" envDefault:"gpt-4.1"`
	ClaudeModel   string  `env:"CLAUDE_MODEL" envDefault:"claude-3-sonnet-20240229"`
	GeminiModel   string  `env:"GEMINI_MODEL" envDefault:"gemini-2.0-flash"`
	SyntheseModel string  `env:"SYNTHESE_MODEL" envDefault:"gpt-4.1"`
	AnalysisTemp  float64 `env:"ANALYSIS_TEMPERATURE" envDefault:"0.3"`
	SyntheseTemp  float64 `env:"SYNTHESE_TEMPERATURE" envDefault:"0.2"`

	TwilioAccountSID     string `env:"TWILIO_ACCOUNT_SID,notEmpty,required"`
	TwilioAuthToken      string `env:"TWILIO_AUTH_TOKEN,notEmpty,required"`
	TwilioFromNumber     string `env:"TWILIO_FROM_NUMBER,notEmpty,required"`
	TwilioWhatsAppNumber string `env:"TWILIO_WHATSAPP_NUMBER"`

	Concurrency int `env:"CONCURRENCY" envDefault:"1"`
}

func main() {
	log.Println("Starting Worker Process...")

	cmd.LoadEnvFile()

	var cfg WorkerConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	db, err := database.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	resultCache, err := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	defer resultCache.Close()

	gpt4, err := llm.NewOpenAI(cfg.OpenAIKey, cfg.GPT4Model, cfg.AnalysisTemp)
	if err != nil {
		log.Fatalf("Failed to create gpt4 backend: %v", err)
	}

	gemini, err := llm.NewGoogleAI(context.Background(), cfg.GoogleKey, cfg.GeminiModel, cfg.AnalysisTemp)
	if err != nil {
		log.Fatalf("Failed to create gemini backend: %v", err)
	}

	// Without an Anthropic key, the claude slot falls back to a second Gemini
	// instance so the pipeline still runs three-wide.
	var claude llm.Chat
	if cfg.AnthropicKey != "" {
		claude, err = llm.NewAnthropic(cfg.AnthropicKey, cfg.ClaudeModel, cfg.AnalysisTemp)
		if err != nil {
			log.Fatalf("Failed to create claude backend: %v", err)
		}
	} else {
		log.Println("ANTHROPIC_API_KEY not set, claude slot served by gemini")
		claude, err = llm.NewGoogleAI(context.Background(), cfg.GoogleKey, cfg.GeminiModel, cfg.AnalysisTemp)
		if err != nil {
			log.Fatalf("Failed to create claude fallback backend: %v", err)
		}
	}

	pipeline := analysis.NewPipeline([]analysis.Backend{
		{Name: analysis.BackendGPT4, Model: gpt4},
		{Name: analysis.BackendClaude, Model: claude},
		{Name: analysis.BackendGemini, Model: gemini},
	}, llm.NewSynthesisOpenAI(cfg.OpenAIKey, cfg.SyntheseModel, cfg.SyntheseTemp))

	runner := analysis.NewRunner(db, resultCache, pipeline)

	sender := notifications.NewTwilioSender(
		cfg.TwilioAccountSID,
		cfg.TwilioAuthToken,
		cfg.TwilioFromNumber,
		cfg.TwilioWhatsAppNumber,
		resultCache,
	)

	publisher, err := messaging.NewRabbitMQPublisher(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	defer publisher.Close()

	receiver, err := messaging.NewRabbitMQReceiver(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("Failed to start RabbitMQ consumer: %v", err)
	}

	worker := messaging.NewWorker(db, receiver, publisher, runner, sender)
	worker.Start(cfg.Concurrency)

	log.Println("Worker started. Waiting for tasks. Press Ctrl+C to exit.")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutdown signal received, waiting for workers to finish...")
	receiver.Close()
	worker.Wait()

	log.Println("Worker process stopped.")
}
