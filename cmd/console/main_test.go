package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitabwire/console/internal/auth"
	"github.com/pitabwire/console/internal/config"
	"github.com/pitabwire/console/internal/definition"
	"github.com/pitabwire/console/internal/devbackend"
	"github.com/pitabwire/console/internal/notify"
)

// env is a dev backend plus the injected collaborators shared by every
// invocation, so a login survives into the next command.
type env struct {
	store     *auth.MemoryStore
	notifier  *notify.Recorder
	confirmer *notify.Static
}

func newEnv(t *testing.T) *env {
	t.Helper()
	reg, err := definition.LoadRegistry(nil)
	require.NoError(t, err)
	srv, err := devbackend.New(config.Defaults().DevBackend, "X-Tenant-Id", reg)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	t.Setenv("CONSOLE_API_BASE_URL", ts.URL+"/api")
	t.Setenv("CONSOLE_AUTH_TOKEN_FILE", filepath.Join(t.TempDir(), "tokens.json"))
	return &env{
		store:     auth.NewMemoryStore(auth.Tokens{}),
		notifier:  &notify.Recorder{},
		confirmer: &notify.Static{Answer: true},
	}
}

func (e *env) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	root, c := newRootCommand(options{store: e.store, notifier: e.notifier, confirmer: e.confirmer})
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	require.NoError(t, c.close(context.Background(), &stderr))
	return stdout.String(), stderr.String(), err
}

func (e *env) login(t *testing.T) {
	t.Helper()
	_, _, err := e.run(t, "login", "--email", devbackend.DefaultEmail, "--password", devbackend.DefaultPassword)
	require.NoError(t, err)
}

func decode(t *testing.T, out string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &m), out)
	return m
}

func TestLogin_andWhoami(t *testing.T) {
	e := newEnv(t)
	out, _, err := e.run(t, "login", "--email", devbackend.DefaultEmail, "--password", devbackend.DefaultPassword)
	require.NoError(t, err)
	assert.Contains(t, out, "Signed in as "+devbackend.DefaultEmail)

	out, _, err = e.run(t, "whoami", "-o", "json")
	require.NoError(t, err)
	assert.Equal(t, devbackend.DefaultEmail, decode(t, out)["email"])
}

func TestLogin_badPasswordIsReported(t *testing.T) {
	e := newEnv(t)
	_, _, err := e.run(t, "login", "--email", devbackend.DefaultEmail, "--password", "wrong-password")
	require.Error(t, err)

	var rep *reportedError
	assert.ErrorAs(t, err, &rep)
	ev, ok := e.notifier.Last()
	require.True(t, ok)
	assert.Equal(t, notify.Error, ev.Kind)
}

func TestLogin_withoutTerminalNeedsFlags(t *testing.T) {
	e := newEnv(t)
	f, err := os.CreateTemp(t.TempDir(), "stdin")
	require.NoError(t, err)
	defer f.Close()

	root, _ := newRootCommand(options{store: e.store, notifier: e.notifier, confirmer: e.confirmer, in: f})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"login", "--email", devbackend.DefaultEmail})
	err = root.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--password")
}

func TestList_requiresSession(t *testing.T) {
	e := newEnv(t)
	_, _, err := e.run(t, "users", "list")
	require.Error(t, err)
	assert.Positive(t, e.notifier.Count(notify.Error))
}

func TestUsersList_json(t *testing.T) {
	e := newEnv(t)
	e.login(t)

	out, _, err := e.run(t, "users", "list", "-o", "json")
	require.NoError(t, err)
	got := decode(t, out)
	assert.EqualValues(t, 3, got["totalCount"])
	assert.EqualValues(t, 1, got["page"])
	assert.Len(t, got["items"], 3)

	out, _, err = e.run(t, "users", "list", "-o", "json", "--search", "jane")
	require.NoError(t, err)
	assert.EqualValues(t, 1, decode(t, out)["totalCount"])
}

func TestPagesList_table(t *testing.T) {
	e := newEnv(t)
	e.login(t)

	out, _, err := e.run(t, "pages", "list", "-o", "table")
	require.NoError(t, err)
	for _, want := range []string{"Name", "Slug", "Home", "about", "Pricing"} {
		assert.Contains(t, out, want)
	}
}

func TestUsersCreate_validationFailsLocally(t *testing.T) {
	e := newEnv(t)
	e.login(t)

	_, stderr, err := e.run(t, "users", "create", "--set", "email=not-an-email")
	require.Error(t, err)
	assert.Contains(t, stderr, "email: Invalid email address")
	assert.Contains(t, stderr, "firstName: First name is required")
}

func TestUsersCreate_update_delete(t *testing.T) {
	e := newEnv(t)
	e.login(t)

	out, _, err := e.run(t, "users", "create", "-o", "json",
		"--data", `{"firstName":"Grace","lastName":"Hopper","username":"grace"}`,
		"--set", "email=grace@example.com",
		"--set", "password=long-enough",
	)
	require.NoError(t, err)
	created := decode(t, out)
	assert.Equal(t, "grace@example.com", created["email"])
	id := jsonNumber(created["id"])
	ev, _ := e.notifier.Last()
	assert.Equal(t, "User created successfully", ev.Message)

	out, _, err = e.run(t, "users", "update", id, "-o", "json", "--set", "lastName=Murray")
	require.NoError(t, err)
	assert.Equal(t, "Murray", decode(t, out)["lastName"])

	_, _, err = e.run(t, "users", "delete", id)
	require.NoError(t, err)
	requests := e.confirmer.Requests()
	require.NotEmpty(t, requests)
	assert.Contains(t, requests[len(requests)-1].Description, "Grace Murray")

	_, _, err = e.run(t, "users", "get", id)
	require.Error(t, err)
}

func jsonNumber(v any) string {
	data, _ := json.Marshal(v)
	return string(data)
}

func TestDelete_declined(t *testing.T) {
	e := newEnv(t)
	e.login(t)
	e.confirmer.Answer = false

	_, stderr, err := e.run(t, "pages", "delete", "2")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Cancelled")

	_, _, err = e.run(t, "pages", "get", "2")
	assert.NoError(t, err)
}

func TestDelete_mainLocationUnavailable(t *testing.T) {
	e := newEnv(t)
	e.login(t)

	_, _, err := e.run(t, "locations", "delete", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not available")
}

func TestAction_publishPage(t *testing.T) {
	e := newEnv(t)
	e.login(t)

	out, _, err := e.run(t, "pages", "action", "2", "publish", "-o", "json")
	require.NoError(t, err)
	assert.Equal(t, "published", decode(t, out)["status"])

	_, _, err = e.run(t, "pages", "action", "2", "publish")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not available")
}

func TestJobs_createFromFormAndCancel(t *testing.T) {
	e := newEnv(t)
	e.login(t)

	out, _, err := e.run(t, "jobs", "create", "--form", "deployment", "-o", "json",
		"--set", "version=2.0.0", "--set", "releaseNotes=Big release")
	require.NoError(t, err)
	job := decode(t, out)
	assert.Equal(t, "deployment", job["type"])
	assert.Equal(t, "Deployment 2.0.0", job["title"])

	out, _, err = e.run(t, "jobs", "action", job["id"].(string), "cancel", "-o", "json")
	require.NoError(t, err)
	assert.Equal(t, "cancelled", decode(t, out)["status"])
}

func TestCompany_getAndUpdate(t *testing.T) {
	e := newEnv(t)
	e.login(t)

	out, _, err := e.run(t, "company", "get", "-o", "json")
	require.NoError(t, err)
	assert.Equal(t, "Acme Inc.", decode(t, out)["name"])

	out, _, err = e.run(t, "company", "update", "-o", "json", "--set", "phone=555-0199")
	require.NoError(t, err)
	got := decode(t, out)
	assert.Equal(t, "555-0199", got["phone"])
	assert.Equal(t, "Acme Inc.", got["name"])

	_, stderr, err := e.run(t, "company", "update", "--set", "name=")
	require.Error(t, err)
	assert.Contains(t, stderr, "Company name is required")
}

func TestPages_slugCommands(t *testing.T) {
	e := newEnv(t)
	e.login(t)

	out, _, err := e.run(t, "pages", "slug", "home", "-o", "json")
	require.NoError(t, err)
	assert.Equal(t, "Home", decode(t, out)["name"])

	out, _, err = e.run(t, "pages", "check-slug", "home")
	require.NoError(t, err)
	assert.Contains(t, out, "already in use")

	out, _, err = e.run(t, "pages", "check-slug", "home", "--exclude", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "is available")
}

func TestFolders_tree(t *testing.T) {
	e := newEnv(t)
	e.login(t)

	out, _, err := e.run(t, "folders", "tree")
	require.NoError(t, err)
	assert.Contains(t, out, "Documents (1 files)\n  Invoices (0 files)")
	assert.Contains(t, out, "Images (0 files)")
}

func TestFiles_uploadAndDownload(t *testing.T) {
	e := newEnv(t)
	e.login(t)

	dir := t.TempDir()
	src := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(src, []byte("release notes"), 0o600))

	out, _, err := e.run(t, "files", "upload", src, "--folder", "3", "-o", "json")
	require.NoError(t, err)
	file := decode(t, out)
	assert.Equal(t, "notes.txt", file["originalFileName"])

	dst := filepath.Join(dir, "copy.txt")
	_, stderr, err := e.run(t, "files", "download", jsonNumber(file["id"]), "--out", dst)
	require.NoError(t, err)
	assert.Contains(t, stderr, "Wrote 13 bytes")
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "release notes", string(data))

	out, _, err = e.run(t, "files", "download", "1")
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}

func TestGenericResource(t *testing.T) {
	e := newEnv(t)
	e.login(t)

	_, _, err := e.run(t, "resource", "list")
	require.Error(t, err)

	out, _, err := e.run(t, "resource", "list", "--name", "locations", "-o", "json")
	require.NoError(t, err)
	assert.EqualValues(t, 2, decode(t, out)["totalCount"])
}

func TestStatus_ready(t *testing.T) {
	e := newEnv(t)

	out, _, err := e.run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "ready")
	assert.Contains(t, out, "backend")
}

func TestLogout_clearsSession(t *testing.T) {
	e := newEnv(t)
	e.login(t)

	_, _, err := e.run(t, "logout")
	require.NoError(t, err)
	_, _, err = e.run(t, "whoami")
	assert.Error(t, err)
}

func TestMetricsFlag_dumpsOnExit(t *testing.T) {
	e := newEnv(t)
	e.login(t)

	_, stderr, err := e.run(t, "users", "list", "--metrics")
	require.NoError(t, err)
	assert.Contains(t, stderr, "console_api_requests_total")
}
