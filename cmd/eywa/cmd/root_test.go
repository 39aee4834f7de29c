package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShankarKakumani/eywa/pkg/version"
)

// runCLI executes the root command against an isolated data directory
// and returns stdout.
func runCLI(t *testing.T, dataDir string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(append(args, "--data-dir", dataDir))
	err := cmd.Execute()
	return buf.String(), err
}

func writeDoc(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRootCmd_HasAllSubcommands(t *testing.T) {
	cmd := NewRootCmd()

	names := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		names[strings.Fields(sub.Use)[0]] = true
	}

	for _, want := range []string{"ingest", "search", "jobs", "sources", "delete", "check", "reset", "config", "version"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}

func TestVersionCmd_DefaultOutput(t *testing.T) {
	// Given: a version command
	cmd := newVersionCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{})

	// When: executing without flags
	err := cmd.Execute()

	// Then: the full version string is printed
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "eywa")
	assert.Contains(t, buf.String(), version.Version)
}

func TestVersionCmd_JSONOutput(t *testing.T) {
	cmd := newVersionCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--json"})

	require.NoError(t, cmd.Execute())

	var info version.BuildInfo
	require.NoError(t, json.Unmarshal(buf.Bytes(), &info))
	assert.Equal(t, version.Version, info.Version)
}

func TestIngestThenSearchCmd(t *testing.T) {
	// Given: a document file and an empty data directory
	dataDir := t.TempDir()
	docDir := t.TempDir()
	writeDoc(t, docDir, "raft.md", "# Raft\n\nthe raft protocol elects a single leader per term")

	// When: ingesting it
	out, err := runCLI(t, dataDir, "ingest", filepath.Join(docDir, "raft.md"), "--source", "wiki")

	// Then: the job completes
	require.NoError(t, err, out)
	assert.Contains(t, out, "1 completed, 0 failed")

	// And: search finds the chunk
	out, err = runCLI(t, dataDir, "search", "raft leader election", "--source", "wiki")
	require.NoError(t, err, out)
	assert.Contains(t, out, "raft")
}

func TestIngestCmd_ReportsFailedDocuments(t *testing.T) {
	// Given: one good and one empty file
	dataDir := t.TempDir()
	docDir := t.TempDir()
	good := writeDoc(t, docDir, "good.md", "useful content about indexing")
	empty := writeDoc(t, docDir, "empty.md", "   ")

	// When: ingesting both
	out, err := runCLI(t, dataDir, "ingest", good, empty)

	// Then: the job succeeds overall and names the failed document
	require.NoError(t, err, out)
	assert.Contains(t, out, "1 completed, 1 failed")
	assert.Contains(t, out, "empty.md")
}

func TestSourcesCmd_CountsIngestedDocs(t *testing.T) {
	dataDir := t.TempDir()
	docDir := t.TempDir()
	doc := writeDoc(t, docDir, "a.md", "content for the sources table")

	_, err := runCLI(t, dataDir, "ingest", doc, "--source", "notes")
	require.NoError(t, err)

	out, err := runCLI(t, dataDir, "sources")
	require.NoError(t, err, out)
	assert.Contains(t, out, "documents: 1")
	assert.Contains(t, out, "notes")
}

func TestDeleteCmd_RemovesDocument(t *testing.T) {
	dataDir := t.TempDir()
	docDir := t.TempDir()
	doc := writeDoc(t, docDir, "a.md", "document that will be deleted")

	_, err := runCLI(t, dataDir, "ingest", doc)
	require.NoError(t, err)

	docID, err := filepath.Abs(doc)
	require.NoError(t, err)

	out, err := runCLI(t, dataDir, "delete", docID)
	require.NoError(t, err, out)
	assert.Contains(t, out, "deleted")

	// Deleting again fails with not found
	_, err = runCLI(t, dataDir, "delete", docID)
	assert.Error(t, err)
}

func TestResetCmd_RequiresForce(t *testing.T) {
	dataDir := t.TempDir()

	_, err := runCLI(t, dataDir, "reset")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--force")

	out, err := runCLI(t, dataDir, "reset", "--force")
	require.NoError(t, err, out)
	assert.Contains(t, out, "reset")
}

func TestCheckCmd_CleanDirectory(t *testing.T) {
	dataDir := t.TempDir()
	docDir := t.TempDir()
	doc := writeDoc(t, docDir, "a.md", "content to verify consistency over")

	_, err := runCLI(t, dataDir, "ingest", doc)
	require.NoError(t, err)

	out, err := runCLI(t, dataDir, "check")
	require.NoError(t, err, out)
	assert.Contains(t, out, "consistent")
}

func TestJobsListCmd_ShowsFinishedJob(t *testing.T) {
	dataDir := t.TempDir()
	docDir := t.TempDir()
	doc := writeDoc(t, docDir, "a.md", "job listing content")

	_, err := runCLI(t, dataDir, "ingest", doc)
	require.NoError(t, err)

	out, err := runCLI(t, dataDir, "jobs", "list")
	require.NoError(t, err, out)
	assert.Contains(t, out, "done")
}

func TestConfigCmd_InitAndShow(t *testing.T) {
	dataDir := t.TempDir()

	out, err := runCLI(t, dataDir, "config", "init")
	require.NoError(t, err, out)
	assert.Contains(t, out, "eywa.yaml")

	_, err = runCLI(t, dataDir, "config", "init")
	require.Error(t, err, "second init without --force must refuse")

	_, err = runCLI(t, dataDir, "config", "init", "--force")
	require.NoError(t, err)

	out, err = runCLI(t, dataDir, "config", "show")
	require.NoError(t, err, out)
	assert.Contains(t, out, "lexical_backend")
	assert.Contains(t, out, "vector_weight")
}

func TestDeleteCmd_Source(t *testing.T) {
	dataDir := t.TempDir()
	docDir := t.TempDir()
	a := writeDoc(t, docDir, "a.md", "raft elects a single leader per term")
	b := writeDoc(t, docDir, "b.md", "paxos reaches consensus with quorums")

	_, err := runCLI(t, dataDir, "ingest", a, b, "--source", "wiki")
	require.NoError(t, err)

	out, err := runCLI(t, dataDir, "delete", "wiki", "--source")
	require.NoError(t, err, out)
	assert.Contains(t, out, "2 document(s)")

	out, err = runCLI(t, dataDir, "sources")
	require.NoError(t, err, out)
	assert.Contains(t, out, "documents: 0")
}
