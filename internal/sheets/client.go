// Package sheets reads submission rows from a Google spreadsheet and writes
// single cells back.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	sheetsv4 "google.golang.org/api/sheets/v4"
)

// DataRange covers the columns a submission row uses.
const DataRange = "A:K"

var (
	ErrUnauthorized = errors.New("sheets: unauthorized")
	ErrForbidden    = errors.New("sheets: forbidden")
	ErrNotFound     = errors.New("sheets: not found")
)

type Client struct {
	srv           *sheetsv4.Service
	spreadsheetID string
	sheetName     string
}

// New builds an authenticated client from credentials JSON.
func New(ctx context.Context, credentialsJSON []byte, spreadsheetID, sheetName string) (*Client, error) {
	if err := ValidateCredentials(credentialsJSON); err != nil {
		return nil, err
	}
	return NewWithOptions(ctx, spreadsheetID, sheetName,
		option.WithCredentialsJSON(credentialsJSON),
		option.WithScopes(sheetsv4.SpreadsheetsScope),
	)
}

// NewFromFile builds a client from a credentials file on disk.
func NewFromFile(ctx context.Context, path, spreadsheetID, sheetName string) (*Client, error) {
	data, err := ReadCredentialsFile(path)
	if err != nil {
		return nil, err
	}
	return New(ctx, data, spreadsheetID, sheetName)
}

// NewWithOptions lets callers supply their own client options (endpoint,
// HTTP client, auth).
func NewWithOptions(ctx context.Context, spreadsheetID, sheetName string, opts ...option.ClientOption) (*Client, error) {
	srv, err := sheetsv4.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	return &Client{srv: srv, spreadsheetID: spreadsheetID, sheetName: sheetName}, nil
}

func (c *Client) SpreadsheetID() string { return c.spreadsheetID }

func (c *Client) SheetName() string { return c.sheetName }

// ReadRows fetches every row of the data range, header included.
func (c *Client) ReadRows(ctx context.Context) ([][]string, error) {
	rng := c.sheetName + "!" + DataRange
	resp, err := c.srv.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("values.get %s: %w", rng, classify(err))
	}

	rows := make([][]string, 0, len(resp.Values))
	for _, raw := range resp.Values {
		row := make([]string, len(raw))
		for i, cell := range raw {
			if cell != nil {
				row[i] = fmt.Sprint(cell)
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// WriteCell overwrites one cell with a raw (unparsed) value. rowNumber is
// 1-based as shown in the sheet; column is a 0-based index.
func (c *Client) WriteCell(ctx context.Context, rowNumber, column int, value string) error {
	rng := CellRange(c.sheetName, column, rowNumber)
	_, err := c.srv.Spreadsheets.Values.Update(c.spreadsheetID, rng, &sheetsv4.ValueRange{
		Values: [][]interface{}{{value}},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("values.update %s: %w", rng, classify(err))
	}
	return nil
}

// CellRange returns A1 notation, e.g. "Sheet2!J5".
func CellRange(sheetName string, column, rowNumber int) string {
	return fmt.Sprintf("%s!%s%d", sheetName, ColumnLetter(column), rowNumber)
}

// ColumnLetter converts a 0-based column index to its letter: 0 -> A, 26 -> AA.
func ColumnLetter(index int) string {
	if index < 0 {
		return ""
	}
	var out []byte
	for n := index + 1; n > 0; n = (n - 1) / 26 {
		out = append([]byte{byte('A' + (n-1)%26)}, out...)
	}
	return string(out)
}

func classify(err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return err
	}
	switch gerr.Code {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %w", ErrUnauthorized, err)
	case http.StatusForbidden:
		return fmt.Errorf("%w: %w", ErrForbidden, err)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	default:
		return err
	}
}
