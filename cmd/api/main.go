package main

import (
	"context"
	"crypto/tls"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/jhoicas/nfse-nacional/internal/application/notas"
	infranfse "github.com/jhoicas/nfse-nacional/internal/infrastructure/nfse"
	"github.com/jhoicas/nfse-nacional/internal/infrastructure/nfse/signer"
	infrapdf "github.com/jhoicas/nfse-nacional/internal/infrastructure/pdf"
	"github.com/jhoicas/nfse-nacional/internal/infrastructure/postgres"
	httpRouter "github.com/jhoicas/nfse-nacional/internal/interfaces/http"
	"github.com/jhoicas/nfse-nacional/internal/worker"
	"github.com/jhoicas/nfse-nacional/pkg/config"
	"github.com/jhoicas/nfse-nacional/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("carregar configuração: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: "info",
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Str("ambiente_nfse", cfg.NFSe.Ambiente).
		Msg("iniciando aplicação")

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexão com PostgreSQL")
	}
	defer pool.Close()

	taskRepo := postgres.NewTaskRepository(pool)
	emitterRepo := postgres.NewEmitterRepository(pool)
	clientRepo := postgres.NewClientRepository(pool)
	txRunner := postgres.NewTxRunner(pool)

	notasCfg := notas.Config{
		Ambiente:     cfg.NFSe.Ambiente,
		VerAplic:     cfg.NFSe.VerAplic,
		SerieEmissao: cfg.NFSe.SerieEmissao,
		SerieRetry:   cfg.NFSe.SerieRetry,
	}

	dpsBuilder := infranfse.NewDPSBuilderService()
	eventoBuilder := infranfse.NewEventoBuilderService()
	signerSvc := signer.NewXMLSignerService()
	danfseRenderer := infrapdf.NewDANFSeRenderer()

	// Um transmissor por emissor: o mTLS usa o certificado de quem emite.
	factory := notas.TransmitterFactory(func(cert tls.Certificate) notas.SefinTransmitter {
		return infranfse.NewSefinClient(cert, log.Zerolog())
	})

	emitSvc := notas.NewEmitService(txRunner, emitterRepo, clientRepo, dpsBuilder, signerSvc, notasCfg, log.Zerolog())
	transmitSvc := notas.NewTransmitService(taskRepo, emitterRepo, clientRepo, factory, danfseRenderer, log.Zerolog())
	regenSvc := notas.NewRegenService(txRunner, emitterRepo, signerSvc, notasCfg, log.Zerolog())
	cancelSvc := notas.NewCancelService(taskRepo, emitterRepo, eventoBuilder, signerSvc, factory, notasCfg, log.Zerolog())

	jobs := worker.NewJobs(taskRepo, transmitSvc, regenSvc, worker.JobsConfig{
		TransmitInterval: cfg.Worker.TransmitInterval,
		TransmitBatch:    cfg.Worker.TransmitBatch,
		RetryInterval:    cfg.Worker.RetryInterval,
		RetryBatch:       cfg.Worker.RetryBatch,
		DANFSeInterval:   cfg.Worker.DANFSeInterval,
		DANFSeBatch:      cfg.Worker.DANFSeBatch,
	}, log.Zerolog())
	runner := worker.NewRunner(log.Zerolog(), jobs.All()...)
	runner.Start(ctx)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 10,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	httpRouter.Router(app, httpRouter.RouterDeps{
		Emit:     emitSvc,
		Cancel:   cancelSvc,
		TaskRepo: taskRepo,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("sinal de desligamento recebido, encerrando...")

	runner.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("desligamento do servidor")
	}

	log.Info().Msg("aplicação encerrada")
}
