package source

import (
	"context"
	"fmt"
	"regexp"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"coursecheck/internal/config"
)

// spreadsheetIDPattern extracts the document id from a pasted Google Sheets
// URL.
var spreadsheetIDPattern = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9-_]+)`)

// SheetsSource loads a dataset from a Google Sheets document via the Sheets
// v4 API. The first returned row is the header row.
type SheetsSource struct {
	SpreadsheetID string
	Config        config.SheetsConfig
}

// ExtractSpreadsheetID pulls the document id out of a full Sheets URL.
// A bare id is returned unchanged.
func ExtractSpreadsheetID(raw string) (string, error) {
	if m := spreadsheetIDPattern.FindStringSubmatch(raw); m != nil {
		return m[1], nil
	}
	if regexp.MustCompile(`^[a-zA-Z0-9-_]+$`).MatchString(raw) {
		return raw, nil
	}
	return "", fmt.Errorf("not a Google Sheets URL or document id: %s", raw)
}

// Name identifies the document.
func (s *SheetsSource) Name() string {
	return "sheets:" + s.SpreadsheetID
}

// Load fetches the configured range. Authentication uses a service-account
// credentials file when configured, an API key otherwise (public sheets).
func (s *SheetsSource) Load(ctx context.Context) (*Dataset, error) {
	var opts []option.ClientOption
	switch {
	case s.Config.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(s.Config.CredentialsFile))
	case s.Config.APIKey != "":
		opts = append(opts, option.WithAPIKey(s.Config.APIKey))
	default:
		return nil, fmt.Errorf("sheets source needs a credentials file or API key")
	}

	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	readRange := s.Config.Range
	if readRange == "" {
		readRange = "A:Z"
	}

	resp, err := svc.Spreadsheets.Values.Get(s.SpreadsheetID, readRange).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read spreadsheet %s: %w", s.SpreadsheetID, err)
	}
	if len(resp.Values) == 0 {
		return nil, fmt.Errorf("spreadsheet %s returned no rows", s.SpreadsheetID)
	}

	headers := toStrings(resp.Values[0])
	records := make([][]string, 0, len(resp.Values)-1)
	for _, raw := range resp.Values[1:] {
		records = append(records, toStrings(raw))
	}

	ds := &Dataset{Headers: headers, Records: records}
	ScrubNulls(ds)
	return ds, nil
}

// toStrings flattens the untyped cell values the API returns.
func toStrings(cells []interface{}) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = fmt.Sprint(c)
	}
	return out
}
