package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/imrishuroy/go-esim-checkout/internal/app"
	"github.com/imrishuroy/go-esim-checkout/internal/aws"
	"github.com/imrishuroy/go-esim-checkout/internal/config"
	"github.com/imrishuroy/go-esim-checkout/internal/handlers"
	"github.com/imrishuroy/go-esim-checkout/internal/logging"
)

func setupRouter(cfg handlers.HandlerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), handlers.RequestLogger())

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.RegisterRoutes(r, cfg)

	return r
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()
	clients, err := aws.NewAWSClients(ctx, cfg.AWSRegion)
	if err != nil {
		log.Fatalf("failed to init aws clients: %v", err)
	}

	a, err := app.New(ctx, cfg, clients)
	if err != nil {
		log.Fatalf("failed to build checkout service: %v", err)
	}
	defer a.Close()

	hc := handlers.HandlerConfig{Service: a.Service, Catalog: a.Catalog}
	if a.Idempotency != nil {
		hc.Idempotency = a.Idempotency
	}
	r := setupRouter(hc)

	// RUN_LOCAL=true serves plain HTTP for development.
	if cfg.RunLocal {
		runLocal(r, cfg.HTTPAddr)
		return
	}

	// lambda adapter
	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}

func runLocal(r *gin.Engine, addr string) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("running local server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("shutdown local server")
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("failed to run local server: %v", err)
		}
	}
}
