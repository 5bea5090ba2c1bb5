package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/ase-101/hackathon/internal/config"
	"github.com/ase-101/hackathon/internal/secrets"
	"github.com/ase-101/hackathon/internal/sheets"
)

type SecretSource interface {
	Get(ctx context.Context, name string) (string, error)
}

// SheetFactory builds a Sheets client from credentials JSON.
type SheetFactory func(ctx context.Context, credentialsJSON []byte, spreadsheetID, sheetName string) (*sheets.Client, error)

type SheetsHandler struct {
	cfg      config.Handler
	secrets  SecretSource
	newSheet SheetFactory
	log      *zap.Logger
}

func NewSheetsHandler(cfg config.Handler, src SecretSource, log *zap.Logger) *SheetsHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &SheetsHandler{cfg: cfg, secrets: src, newSheet: sheets.New, log: log}
}

// Handle loads the Google credentials and opens the spreadsheet. It does
// nothing else yet.
func (h *SheetsHandler) Handle(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	log := h.log.With(zap.String("request_id", req.RequestContext.RequestID))

	creds, err := h.secrets.Get(ctx, h.cfg.CredentialsSecret)
	if err != nil {
		log.Error("cannot load credentials", zap.String("secret", h.cfg.CredentialsSecret), zap.Error(err))
		switch {
		case errors.Is(err, secrets.ErrSecretNotFound):
			return errResp(http.StatusInternalServerError, "credentials secret not found")
		case errors.Is(err, secrets.ErrAccessDenied):
			return errResp(http.StatusInternalServerError, "access denied to credentials secret")
		default:
			return errResp(http.StatusInternalServerError, "credentials unavailable")
		}
	}

	client, err := h.newSheet(ctx, []byte(creds), h.cfg.SpreadsheetID, h.cfg.SheetName)
	if err != nil {
		log.Error("cannot create sheets client", zap.Error(err))
		return errResp(http.StatusInternalServerError, "invalid google credentials")
	}

	log.Info("sheets client ready", zap.String("spreadsheet_id", client.SpreadsheetID()))
	return jsonResp(http.StatusOK, map[string]any{
		"ok":             true,
		"spreadsheet_id": client.SpreadsheetID(),
	})
}

func jsonResp(status int, v any) (events.APIGatewayV2HTTPResponse, error) {
	b, _ := json.Marshal(v)
	return events.APIGatewayV2HTTPResponse{
		StatusCode: status,
		Headers: map[string]string{
			"content-type":                "application/json",
			"access-control-allow-origin": "*",
		},
		Body: string(b),
	}, nil
}

func errResp(status int, msg string) (events.APIGatewayV2HTTPResponse, error) {
	return jsonResp(status, map[string]any{
		"error": msg,
	})
}
