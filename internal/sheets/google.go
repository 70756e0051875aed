package sheets

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"

	"github.com/ferraceros/ferrabot/internal/circuitbreaker"
	"github.com/ferraceros/ferrabot/internal/config"
)

// Append options matching a human-maintained sheet: values are stored as
// typed and always land on new rows below the table.
const (
	valueInputOption = "RAW"
	insertDataOption = "INSERT_ROWS"
)

// GoogleAppender appends rows with the Sheets v4 API using a service account.
type GoogleAppender struct {
	service        *gsheets.Service
	spreadsheetID  string
	appendRange    string
	timeout        time.Duration
	circuitBreaker *circuitbreaker.CircuitBreaker
	logger         *zap.Logger
}

// NewGoogleAppender authenticates with the credentials file in cfg. Extra
// client options are appended after the credentials, so tests can point the
// client at a local endpoint.
func NewGoogleAppender(ctx context.Context, cfg *config.SheetsConfig, cb *circuitbreaker.CircuitBreaker, logger *zap.Logger, extra ...option.ClientOption) (*GoogleAppender, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cb == nil {
		cb = circuitbreaker.New("google-sheets", circuitbreaker.DefaultConfig(), logger)
	}

	opts := []option.ClientOption{option.WithScopes(gsheets.SpreadsheetsScope)}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	opts = append(opts, extra...)

	svc, err := gsheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	logger.Info("google sheets appender ready",
		zap.String("spreadsheet_id", cfg.SpreadsheetID),
		zap.String("range", cfg.Range),
	)

	return &GoogleAppender{
		service:        svc,
		spreadsheetID:  cfg.SpreadsheetID,
		appendRange:    cfg.Range,
		timeout:        15 * time.Second,
		circuitBreaker: cb,
		logger:         logger,
	}, nil
}

// AppendRow appends one row below the last row of the configured range.
func (g *GoogleAppender) AppendRow(ctx context.Context, values []string) error {
	return g.circuitBreaker.Execute(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		vr := &gsheets.ValueRange{Values: [][]interface{}{toInterfaces(values)}}
		resp, err := g.service.Spreadsheets.Values.
			Append(g.spreadsheetID, g.appendRange, vr).
			ValueInputOption(valueInputOption).
			InsertDataOption(insertDataOption).
			Context(ctx).
			Do()
		if err != nil {
			return err
		}
		if resp.Updates != nil {
			g.logger.Debug("sheet updated", zap.String("updated_range", resp.Updates.UpdatedRange))
		}
		return nil
	})
}

// IsCircuitOpen returns true if the circuit breaker is open.
func (g *GoogleAppender) IsCircuitOpen() bool {
	return g.circuitBreaker.IsOpen()
}

// CircuitBreaker exposes the breaker for health and admin endpoints.
func (g *GoogleAppender) CircuitBreaker() *circuitbreaker.CircuitBreaker {
	return g.circuitBreaker
}
