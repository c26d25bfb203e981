package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	log "github.com/sirupsen/logrus"

	"github.com/imrishuroy/go-esim-checkout/internal/app"
	"github.com/imrishuroy/go-esim-checkout/internal/aws"
	"github.com/imrishuroy/go-esim-checkout/internal/config"
	"github.com/imrishuroy/go-esim-checkout/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	var clients *aws.AWSClients
	if cfg.StorageDriver == config.StorageDynamoDB {
		clients, err = aws.NewAWSClients(context.Background(), cfg.AWSRegion)
		if err != nil {
			log.Fatalf("failed to init aws clients: %v", err)
		}
	}

	stores, err := app.OpenStores(cfg, clients)
	if err != nil {
		log.Fatalf("failed to open stores: %v", err)
	}
	defer stores.Close()

	p := NewProcessor(stores.Purchases)

	// If RUN_LOCAL=true, simulate a single SQS event from LOCAL_SQS_BODY.
	if cfg.RunLocal {
		body := os.Getenv("LOCAL_SQS_BODY")
		if body == "" {
			log.Fatal("LOCAL_SQS_BODY is required when RUN_LOCAL=true")
		}
		event := events.SQSEvent{
			Records: []events.SQSMessage{
				{MessageId: "local-1", Body: body},
			},
		}
		if err := p.Handle(context.Background(), event); err != nil {
			log.Fatalf("local handler error: %v", err)
		}
		return
	}

	lambda.Start(p.Handle)
}
