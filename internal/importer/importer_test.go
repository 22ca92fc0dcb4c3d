package importer

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/hazard-engine/internal/model"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "export.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadCSV_AliasedColumns(t *testing.T) {
	t.Parallel()

	path := writeCSV(t,
		"unique_key,latitude,longitude,complaint_type,descriptor,borough,status,created_date\n"+
			"k1,40.7128,-74.0060,Pothole,LARGE POTHOLE ON FDR DRIVE,MANHATTAN,Open,2026-01-15 08:30:00\n"+
			"k2,40.6892,-74.0445,,SINKHOLE NEAR CURB,BROOKLYN,Closed,2026-01-16\n")

	res, err := ReadCSV(path, Options{})
	require.NoError(t, err)
	require.Len(t, res.Issues, 2)
	assert.Zero(t, res.Skipped)

	first := res.Issues[0]
	assert.Equal(t, "k1", first.ID)
	assert.Equal(t, 40.7128, first.Lat)
	assert.Equal(t, "pothole", first.Category)
	assert.Equal(t, "Large Pothole On Fdr Drive", first.LocationLabel)
	assert.Equal(t, "Manhattan", first.Neighborhood)
	assert.Equal(t, model.IssueStatusOpen, first.Status)
	assert.Equal(t, time.Date(2026, 1, 15, 8, 30, 0, 0, time.UTC), first.CreatedAt)

	// Category inferred from the free-text descriptor.
	second := res.Issues[1]
	assert.Equal(t, "sinkhole", second.Category)
	assert.Equal(t, model.IssueStatusClosed, second.Status)
}

func TestReadCSV_SkipsBadCoordinates(t *testing.T) {
	t.Parallel()

	path := writeCSV(t,
		"id,lat,lng,category\n"+
			"a,40.7,-74.0,pothole\n"+
			"b,not-a-number,-74.0,pothole\n"+
			"c,40.8,,crack\n")

	res, err := ReadCSV(path, Options{})
	require.NoError(t, err)
	assert.Len(t, res.Issues, 1)
	assert.Equal(t, 2, res.Skipped)
}

func TestReadCSV_Defaults(t *testing.T) {
	t.Parallel()

	path := writeCSV(t,
		"lat,lng,descriptor\n"+
			"40.7,-74.0,rough surface near intersection\n")

	res, err := ReadCSV(path, Options{DefaultCategory: "surface_defect"})
	require.NoError(t, err)
	require.Len(t, res.Issues, 1)

	issue := res.Issues[0]
	assert.Empty(t, issue.ID) // store assigns one
	assert.Equal(t, "surface_defect", issue.Category)
	assert.Equal(t, model.IssueStatusOpen, issue.Status)
	assert.False(t, issue.CreatedAt.IsZero())
}

func TestReadCSV_ConfidenceAndDepth(t *testing.T) {
	t.Parallel()

	path := writeCSV(t,
		"lat,lng,category,confidence,depth_cm\n"+
			"40.7,-74.0,pothole,0.87,8\n"+
			"40.8,-74.1,pothole,,\n")

	res, err := ReadCSV(path, Options{})
	require.NoError(t, err)
	require.Len(t, res.Issues, 2)

	require.NotNil(t, res.Issues[0].Confidence)
	assert.Equal(t, 0.87, *res.Issues[0].Confidence)
	require.NotNil(t, res.Issues[0].DepthCM)
	assert.Equal(t, 8.0, *res.Issues[0].DepthCM)

	assert.Nil(t, res.Issues[1].Confidence)
	assert.Nil(t, res.Issues[1].DepthCM)
}

func TestReadCSV_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := ReadCSV(filepath.Join(t.TempDir(), "nope.csv"), Options{})
	assert.Error(t, err)
}

func createTestXLSX(t *testing.T, sheets map[string][][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	for name, rows := range sheets {
		sheet, err := f.AddSheet(name)
		require.NoError(t, err)
		for _, rowData := range rows {
			row := sheet.AddRow()
			for _, cellData := range rowData {
				cell := row.AddCell()
				cell.SetString(cellData)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "export.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestReadXLSX_Basic(t *testing.T) {
	t.Parallel()

	path := createTestXLSX(t, map[string][][]string{
		"Sheet1": {
			{"id", "lat", "lng", "category", "status"},
			{"x1", "40.7", "-74.0", "Flooding", "open"},
			{"x2", "40.8", "-74.1", "crack", "resolved"},
		},
	})

	res, err := ReadXLSX(path, Options{})
	require.NoError(t, err)
	require.Len(t, res.Issues, 2)
	assert.Equal(t, "flooding", res.Issues[0].Category)
	assert.Equal(t, model.IssueStatusClosed, res.Issues[1].Status)
}

func TestReadXLSX_SheetSelection(t *testing.T) {
	t.Parallel()

	path := createTestXLSX(t, map[string][][]string{
		"Data": {
			{"lat", "lng", "category"},
			{"40.7", "-74.0", "pothole"},
		},
	})

	res, err := ReadXLSX(path, Options{SheetName: "Data"})
	require.NoError(t, err)
	assert.Len(t, res.Issues, 1)

	_, err = ReadXLSX(path, Options{SheetName: "Missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sheet \"Missing\" not found")
}

func TestResolveCategory_TermMapping(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"street cave-in reported":   "sinkhole",
		"standing water after rain": "flooding",
		"longitudinal crack":        "crack",
		"displaced manhole cover":   "manhole",
		"something else entirely":   "unknown",
	}
	for label, want := range cases {
		assert.Equal(t, want, resolveCategory("", label, ""), label)
	}
}
