package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelled-needs-server/internal/domain"
	"github.com/modelled-needs-server/internal/lookup"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestLookupsCommand(t *testing.T) {
	out, err := execute(t, "", "lookups")
	require.NoError(t, err)

	var tables map[string][]lookup.Entry
	require.NoError(t, json.Unmarshal([]byte(out), &tables))
	assert.Contains(t, tables["conditions"], lookup.Entry{FullName: "Coronary Heart Disease", ShortName: "chd"})
}

func TestRunCommand_InvalidRequest(t *testing.T) {
	out, err := execute(t, `{"response_filter_1": "Diabetes"}`, "run")
	require.Error(t, err)

	var resp domain.ModelResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 500, resp.Status)
	assert.Empty(t, resp.ModelMatch)
}

func TestRunCommand_MissingFile(t *testing.T) {
	_, err := execute(t, "", "run", "--request", filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading request")
}

func TestReadRequest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "req.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"a":1}`), 0o600))

	body, err := readRequest(strings.NewReader("ignored"), path)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(body))

	body, err = readRequest(strings.NewReader("from stdin"), "-")
	require.NoError(t, err)
	assert.Equal(t, "from stdin", string(body))
}
