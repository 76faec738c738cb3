package cli

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCmd executes the CLI with the given args and returns combined output.
func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func testDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "rota.db")
}

func TestRejectsInvalidFormat(t *testing.T) {
	_, err := runCmd(t, "resource", "list", "--db", testDB(t), "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestResourceAddAndList(t *testing.T) {
	db := testDB(t)

	out, err := runCmd(t, "resource", "add", "alice", "--db", db,
		"--name", "Alice Liu", "--cap", "spanish", "--cap", "enterprise")
	require.NoError(t, err)
	assert.Contains(t, out, "added resource alice")

	out, err = runCmd(t, "resource", "list", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "spanish")

	// Duplicate ids are command errors.
	_, err = runCmd(t, "resource", "add", "alice", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestResourceDeactivateRemovesFromRotation(t *testing.T) {
	db := testDB(t)

	_, err := runCmd(t, "resource", "add", "alice", "--db", db)
	require.NoError(t, err)
	out, err := runCmd(t, "resource", "deactivate", "alice", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "inactive")

	out, err = runCmd(t, "allocate", "sdr-1", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "no_eligible_resource")
}

// allocateID runs an allocate command and extracts the assignment id from the
// text output ("assigned <agent> -> <resource> (assignment <id>)").
func allocateID(t *testing.T, db, agent string) string {
	t.Helper()
	out, err := runCmd(t, "allocate", agent, "--db", db)
	require.NoError(t, err)
	fields := strings.Fields(strings.TrimSpace(out))
	require.NotEmpty(t, fields)
	return strings.TrimSuffix(fields[len(fields)-1], ")")
}

func TestAllocateReassignHistoryFlow(t *testing.T) {
	db := testDB(t)

	for _, id := range []string{"alpha", "beta"} {
		_, err := runCmd(t, "resource", "add", id, "--db", db)
		require.NoError(t, err)
	}

	asgID := allocateID(t, db, "sdr-1")

	out, err := runCmd(t, "history", asgID, "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "never been reassigned")

	out, err = runCmd(t, "reassign", asgID, "--db", db, "--reason", "escalation")
	require.NoError(t, err)
	assert.Contains(t, out, "seq 1")

	out, err = runCmd(t, "history", asgID, "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "seq=1")
	assert.Contains(t, out, "escalation")
}

func TestReassignRequiresReason(t *testing.T) {
	_, err := runCmd(t, "reassign", "some-id", "--db", testDB(t))
	require.Error(t, err)
}

func TestAssignmentCompleteAndList(t *testing.T) {
	db := testDB(t)

	_, err := runCmd(t, "resource", "add", "alpha", "--db", db)
	require.NoError(t, err)
	asgID := allocateID(t, db, "sdr-1")

	out, err := runCmd(t, "assignment", "complete", asgID, "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "completed")

	out, err = runCmd(t, "assignment", "list", "--db", db, "--status", "active")
	require.NoError(t, err)
	assert.NotContains(t, out, asgID)

	// Completing twice is a domain failure, not a command error.
	_, err = runCmd(t, "assignment", "complete", asgID, "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestJSONOutput(t *testing.T) {
	db := testDB(t)

	out, err := runCmd(t, "resource", "add", "alpha", "--db", db, "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"status":"ok"`)

	out, err = runCmd(t, "resource", "list", "--db", db, "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"id":"alpha"`)
}
