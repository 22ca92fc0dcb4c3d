package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/hazard-engine/internal/importer"
	"github.com/sells-group/hazard-engine/internal/model"
	"github.com/sells-group/hazard-engine/internal/store"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()

	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	expected := []string{"serve", "import", "assess", "route", "loadzones", "loadgraph"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "hazard-engine", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestImportCommand_RequiredFlags(t *testing.T) {
	flag := importCmd.Flags().Lookup("file")
	require.NotNil(t, flag, "import command should have --file flag")

	bulk := importCmd.Flags().Lookup("bulk")
	require.NotNil(t, bulk, "import command should have --bulk flag")
	assert.Equal(t, "false", bulk.DefValue)
}

func TestBulkImport_RequiresPostgres(t *testing.T) {
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "import.db"))
	require.NoError(t, err)
	defer func() { _ = st.Close() }()

	env := &engineEnv{Store: st}
	err = bulkImport(context.Background(), env, &importer.Result{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres")
}

func TestParseLatLng(t *testing.T) {
	ll, err := parseLatLng("40.7128, -74.0060")
	require.NoError(t, err)
	assert.Equal(t, 40.7128, ll.Lat)
	assert.Equal(t, -74.0060, ll.Lng)

	_, err = parseLatLng("40.7128")
	assert.Error(t, err)

	_, err = parseLatLng("north,west")
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, model.RiskLevelMedium, parseLevel("Medium", model.RiskLevelLow))
	assert.Equal(t, model.RiskLevelCritical, parseLevel(" critical ", model.RiskLevelLow))
	assert.Equal(t, model.RiskLevelHigh, parseLevel("bogus", model.RiskLevelHigh))
}
