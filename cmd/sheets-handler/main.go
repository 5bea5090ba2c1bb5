package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/ase-101/hackathon/internal/awsclient"
	"github.com/ase-101/hackathon/internal/config"
	"github.com/ase-101/hackathon/internal/handlers"
	"github.com/ase-101/hackathon/internal/logging"
	"github.com/ase-101/hackathon/internal/secrets"
)

func main() {
	ctx := context.Background()

	v, err := config.New(nil)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	cfg, err := config.LoadHandler(v)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	awsCfg, err := awsclient.Load(ctx, cfg.Region)
	if err != nil {
		logger.Fatal("load aws config", zap.Error(err))
	}

	h := handlers.NewSheetsHandler(cfg, secrets.NewFromConfig(awsCfg), logger)
	lambda.Start(h.Handle)
}
