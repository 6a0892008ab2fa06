package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"golang.org/x/oauth2"
	goauth "golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"spending/internal/core"
	ports "spending/internal/sheets"
)

// DefaultSheetName is the worksheet holding the ledger.
const DefaultSheetName = "My Spending Sheet"

// Config selects the spreadsheet and how to authenticate against it.
// Service account credentials win over OAuth client/token pairs.
type Config struct {
	SpreadsheetID string
	SheetName     string

	ServiceAccountJSON string
	ServiceAccountFile string

	OAuthClientJSON string
	OAuthClientFile string
	OAuthTokenJSON  string
	OAuthTokenFile  string

	// AppendAttempts and RetryDelay bound retries of rate-limited appends.
	AppendAttempts uint
	RetryDelay     time.Duration
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	attempts      uint
	retryDelay    time.Duration
	logger        *slog.Logger
}

// Ensure interface conformance
var _ ports.Ledger = (*Client)(nil)

// jsonUnmarshal is swapped in tests.
var jsonUnmarshal = json.Unmarshal

// New creates a Sheets client for the configured spreadsheet.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	svc, err := newSheetsService(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return NewWithService(svc, cfg, logger), nil
}

// NewWithService wraps an already constructed Sheets service.
func NewWithService(svc *gsheet.Service, cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	name := strings.TrimSpace(cfg.SheetName)
	if name == "" {
		name = DefaultSheetName
	}
	attempts := cfg.AppendAttempts
	if attempts == 0 {
		attempts = 3
	}
	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = 2 * time.Second
	}
	return &Client{
		svc:           svc,
		spreadsheetID: strings.TrimSpace(cfg.SpreadsheetID),
		sheetName:     name,
		attempts:      attempts,
		retryDelay:    delay,
		logger:        logger.With("component", "sheets"),
	}
}

// newSheetsService initializes a Sheets Service from service account
// credentials, or from an OAuth client plus a saved token.
func newSheetsService(ctx context.Context, cfg Config, logger *slog.Logger) (*gsheet.Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	saJSON, err := readSecret(cfg.ServiceAccountJSON, cfg.ServiceAccountFile)
	if err != nil {
		return nil, fmt.Errorf("read service account: %w", err)
	}
	if len(saJSON) > 0 {
		logger.InfoContext(ctx, "Using service account credentials", "credentials_size", len(saJSON))
		return gsheet.NewService(ctx,
			goption.WithCredentialsJSON(saJSON),
			goption.WithScopes(gsheet.SpreadsheetsScope))
	}

	clientJSON, err := readSecret(cfg.OAuthClientJSON, cfg.OAuthClientFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth client: %w", err)
	}
	if len(clientJSON) == 0 {
		return nil, errors.New("missing credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_OAUTH_CLIENT_FILE)")
	}
	tokenJSON, err := readSecret(cfg.OAuthTokenJSON, cfg.OAuthTokenFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth token: %w", err)
	}
	if len(tokenJSON) == 0 {
		return nil, errors.New("missing oauth token (set GOOGLE_OAUTH_TOKEN_JSON or GOOGLE_OAUTH_TOKEN_FILE)")
	}

	oauthCfg, err := goauth.ConfigFromJSON(clientJSON, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}
	var tok oauth2.Token
	if err := jsonUnmarshal(tokenJSON, &tok); err != nil {
		return nil, fmt.Errorf("oauth token: %w", err)
	}
	logger.InfoContext(ctx, "Using OAuth client credentials", "has_refresh_token", tok.RefreshToken != "")
	return gsheet.NewService(ctx, goption.WithTokenSource(oauthCfg.TokenSource(ctx, &tok)))
}

// readSecret prefers inline JSON over a file path; both empty yields nil.
func readSecret(inline, path string) ([]byte, error) {
	if s := strings.TrimSpace(inline); s != "" {
		return []byte(s), nil
	}
	if p := strings.TrimSpace(path); p != "" {
		return os.ReadFile(p)
	}
	return nil, nil
}

// ReadAll reads the whole ledger sheet. The first row must carry every
// ledger column header; other columns are ignored.
func (c *Client) ReadAll(ctx context.Context) ([]core.Transaction, error) {
	if c.svc == nil {
		return nil, fmt.Errorf("%w: sheets service not initialized", core.ErrStoreUnavailable)
	}
	rng := fmt.Sprintf("%s!A:Z", c.sheetName)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).
		ValueRenderOption("UNFORMATTED_VALUE").
		DateTimeRenderOption("FORMATTED_STRING").
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", core.ErrStoreUnavailable, rng, err)
	}
	txs, stats, err := parseLedger(resp.Values)
	if err != nil {
		return nil, err
	}
	if len(stats.Extra) > 0 {
		c.logger.WarnContext(ctx, "Ignoring unknown ledger columns", "columns", stats.Extra, "sheet", c.sheetName)
	}
	if stats.BadAmounts > 0 || stats.BadDates > 0 {
		c.logger.DebugContext(ctx, "Ledger rows with unparsable cells",
			"bad_amounts", stats.BadAmounts,
			"bad_dates", stats.BadDates)
	}
	return txs, nil
}

// Append writes one row in ledger column order. Rate-limited calls are retried.
func (c *Client) Append(ctx context.Context, t core.Transaction) (string, error) {
	if c.svc == nil {
		return "", fmt.Errorf("%w: sheets service not initialized", core.ErrStoreUnavailable)
	}
	rng := fmt.Sprintf("%s!A:I", c.sheetName)
	vr := &gsheet.ValueRange{Values: [][]any{t.Row()}}

	var resp *gsheet.AppendValuesResponse
	err := retry.Do(
		func() error {
			var err error
			resp, err = c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
				ValueInputOption("RAW").
				InsertDataOption("INSERT_ROWS").
				Context(ctx).
				Do()
			return err
		},
		retry.RetryIf(func(err error) bool {
			var apiErr *googleapi.Error
			if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
				c.logger.WarnContext(ctx, "Rate limited, will retry", "error", err)
				return true
			}
			return false
		}),
		retry.Attempts(c.attempts),
		retry.Delay(c.retryDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)
	if err != nil {
		return "", fmt.Errorf("%w: append to %s: %w", core.ErrStoreUnavailable, c.sheetName, err)
	}

	ref := rng
	if resp != nil && resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}
	c.logger.InfoContext(ctx, "Ledger row appended",
		"sheets_ref", ref,
		"date", t.Date,
		"seq", t.Seq,
		"item", t.Item)
	return ref, nil
}

// Ping checks that the spreadsheet is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c.svc == nil {
		return fmt.Errorf("%w: sheets service not initialized", core.ErrStoreUnavailable)
	}
	rng := fmt.Sprintf("%s!A1:I1", c.sheetName)
	if _, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do(); err != nil {
		return fmt.Errorf("%w: %w", core.ErrStoreUnavailable, err)
	}
	return nil
}
