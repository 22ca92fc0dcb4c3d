// Package importer ingests municipal issue exports in CSV and XLSX form.
// Exports are header-driven: columns are matched by name, with the aliases
// real city datasets use, so the same mapper serves both formats.
package importer

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/hazard-engine/internal/model"
)

// Options configures an import.
type Options struct {
	// DefaultCategory labels rows whose category cannot be resolved from a
	// column or from free text.
	DefaultCategory string
	// SheetName selects the XLSX worksheet; empty means the first sheet.
	SheetName string
}

// Result summarizes an import.
type Result struct {
	Issues  []model.Issue
	Skipped int
}

// columnAliases maps canonical field names to the header spellings seen in
// municipal exports.
var columnAliases = map[string][]string{
	"id":           {"id", "unique_key", "issue_id"},
	"lat":          {"lat", "latitude"},
	"lng":          {"lng", "lon", "longitude"},
	"category":     {"category", "complaint_type", "type"},
	"confidence":   {"confidence", "cv_confidence"},
	"depth_cm":     {"depth_cm", "depth"},
	"status":       {"status"},
	"label":        {"location_label", "descriptor", "location", "incident_address"},
	"neighborhood": {"neighborhood", "borough", "community_board"},
	"created_at":   {"created_at", "created_date", "reported_at"},
}

// titleCaser normalizes free-text labels from ALL-CAPS exports.
var titleCaser = cases.Title(language.English)

// ReadCSV imports issues from a CSV export with a header row.
func ReadCSV(path string, opts Options) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "importer: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, eris.Wrapf(err, "importer: read header %s", path)
	}

	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "importer: read %s", path)
		}
		rows = append(rows, rec)
	}

	return mapRows(path, header, rows, opts), nil
}

// mapRows converts raw rows to issues using the header for column positions.
func mapRows(path string, header []string, rows [][]string, opts Options) *Result {
	cols := resolveColumns(header)
	res := &Result{}

	for _, rec := range rows {
		issue, ok := mapRow(cols, rec, opts)
		if !ok {
			res.Skipped++
			continue
		}
		res.Issues = append(res.Issues, issue)
	}

	zap.L().Info("importer: export read",
		zap.String("path", path),
		zap.Int("issues", len(res.Issues)),
		zap.Int("skipped", res.Skipped),
	)
	return res
}

func resolveColumns(header []string) map[string]int {
	byName := make(map[string]int, len(header))
	for i, h := range header {
		byName[strings.ToLower(strings.TrimSpace(h))] = i
	}

	cols := make(map[string]int)
	for field, aliases := range columnAliases {
		cols[field] = -1
		for _, a := range aliases {
			if i, ok := byName[a]; ok {
				cols[field] = i
				break
			}
		}
	}
	return cols
}

func mapRow(cols map[string]int, rec []string, opts Options) (model.Issue, bool) {
	get := func(field string) string {
		i := cols[field]
		if i < 0 || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	lat, err := strconv.ParseFloat(get("lat"), 64)
	if err != nil {
		return model.Issue{}, false
	}
	lng, err := strconv.ParseFloat(get("lng"), 64)
	if err != nil {
		return model.Issue{}, false
	}

	issue := model.Issue{
		ID:            get("id"),
		Lat:           lat,
		Lng:           lng,
		Category:      resolveCategory(get("category"), get("label"), opts.DefaultCategory),
		LocationLabel: titleCaser.String(strings.ToLower(get("label"))),
		Neighborhood:  titleCaser.String(strings.ToLower(get("neighborhood"))),
		Status:        parseStatus(get("status")),
	}

	if v := get("confidence"); v != "" {
		if conf, err := strconv.ParseFloat(v, 64); err == nil {
			issue.Confidence = &conf
		}
	}
	if v := get("depth_cm"); v != "" {
		if depth, err := strconv.ParseFloat(v, 64); err == nil {
			issue.DepthCM = &depth
		}
	}
	if v := get("created_at"); v != "" {
		if ts, err := parseTime(v); err == nil {
			issue.CreatedAt = ts
		}
	}
	if issue.CreatedAt.IsZero() {
		issue.CreatedAt = time.Now().UTC()
	}
	issue.UpdatedAt = issue.CreatedAt

	return issue, true
}

// categoryTerms resolves free-text descriptions to defect categories when no
// category column exists.
var categoryTerms = []struct {
	term     string
	category string
}{
	{"sinkhole", "sinkhole"},
	{"cave-in", "sinkhole"},
	{"pothole", "pothole"},
	{"flood", "flooding"},
	{"standing water", "flooding"},
	{"ponding", "flooding"},
	{"crack", "crack"},
	{"erosion", "erosion"},
	{"manhole", "manhole"},
	{"utility cut", "utility_cut"},
	{"debris", "debris"},
}

func resolveCategory(category, label, fallback string) string {
	if category != "" {
		return strings.ToLower(category)
	}
	text := strings.ToLower(label)
	for _, ct := range categoryTerms {
		if strings.Contains(text, ct.term) {
			return ct.category
		}
	}
	if fallback != "" {
		return fallback
	}
	return "unknown"
}

func parseStatus(s string) model.IssueStatus {
	switch strings.ToLower(s) {
	case "closed", "resolved", "completed":
		return model.IssueStatusClosed
	case "in_progress", "in progress", "assigned", "started":
		return model.IssueStatusInProgress
	default:
		return model.IssueStatusOpen
	}
}

// timeLayouts covers the timestamp formats municipal exports use.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006 03:04:05 PM",
	"01/02/2006",
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, eris.Errorf("importer: unparsable timestamp %q", s)
}
