package console

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pitabwire/console/internal/api"
	"github.com/pitabwire/console/internal/auth"
	"github.com/pitabwire/console/internal/config"
	"github.com/pitabwire/console/internal/definition"
	"github.com/pitabwire/console/internal/notify"
	"github.com/pitabwire/console/internal/query"
	"github.com/pitabwire/console/internal/resources"
	"github.com/pitabwire/console/model"
)

type miscBackend struct {
	treeCalls   atomic.Int32
	companyPuts atomic.Int32
	uploads     atomic.Int32
	company     model.Company
}

func (b *miscBackend) router() http.Handler {
	r := chi.NewRouter()
	r.Get("/folders/tree", func(w http.ResponseWriter, _ *http.Request) {
		b.treeCalls.Add(1)
		parent := int64(1)
		writeJSON(w, http.StatusOK, []model.Folder{{
			ID:         1,
			Name:       "Documents",
			SubFolders: []model.Folder{{ID: 2, Name: "Invoices", ParentFolderID: &parent}},
		}})
	})
	r.Get("/company", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, b.company)
	})
	r.Put("/company", func(w http.ResponseWriter, req *http.Request) {
		b.companyPuts.Add(1)
		body, _ := io.ReadAll(req.Body)
		c := b.company
		_ = json.Unmarshal(body, &c)
		b.company = c
		writeJSON(w, http.StatusOK, c)
	})
	r.Post("/files/upload", func(w http.ResponseWriter, req *http.Request) {
		b.uploads.Add(1)
		file, header, err := req.FormFile("file")
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": "No file provided"})
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		writeJSON(w, http.StatusOK, model.FileEntity{ID: 9, OriginalFileName: header.Filename, FileSize: int64(len(data))})
	})
	r.Get("/files/{id}/download", func(w http.ResponseWriter, req *http.Request) {
		if chi.URLParam(req, "id") != "9" {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "File not found"})
			return
		}
		_, _ = w.Write([]byte("hello"))
	})
	return r
}

func newMisc(t *testing.T) (*miscBackend, *api.Client, Deps, *notify.Recorder, map[string]model.ResourceDescriptor) {
	t.Helper()
	b := &miscBackend{company: model.Company{ID: 1, Name: "Acme"}}
	srv := httptest.NewServer(b.router())
	t.Cleanup(srv.Close)

	cfg := config.Defaults()
	cfg.API.BaseURL = srv.URL
	cfg.API.CircuitBreaker.Enabled = false
	session, err := auth.NewSession(auth.NewMemoryStore(auth.Tokens{AccessToken: "tok"}))
	require.NoError(t, err)

	defs, err := definition.NewLoader().Defaults()
	require.NoError(t, err)
	descs, err := resources.Require(definition.NewRegistry(defs))
	require.NoError(t, err)

	rec := &notify.Recorder{}
	deps := Deps{Cache: query.New(cfg.Cache), Notifier: rec}
	return b, api.New(cfg.API, cfg.Auth, session), deps, rec, descs
}

func TestFolderTree_cachedAndInvalidatedByUpload(t *testing.T) {
	b, client, deps, rec, descs := newMisc(t)
	ctx := context.Background()
	folders := api.NewFolders(client, descs[resources.Folders])
	files := api.NewFiles(client, descs[resources.Files])

	tree, err := FolderTree(ctx, deps, folders)
	require.NoError(t, err)
	require.Len(t, tree, 1)
	assert.Equal(t, "Invoices", tree[0].SubFolders[0].Name)

	_, err = FolderTree(ctx, deps, folders)
	require.NoError(t, err)
	assert.Equal(t, int32(1), b.treeCalls.Load())

	file, out := Upload(ctx, deps, files, api.Upload{FileName: "logo.png", Content: strings.NewReader("png!")})
	require.True(t, out.OK())
	assert.Equal(t, int64(4), file.FileSize)
	assert.Equal(t, "File uploaded successfully", out.Message)
	assert.Equal(t, 1, rec.Count(notify.Success))

	_, err = FolderTree(ctx, deps, folders)
	require.NoError(t, err)
	assert.Equal(t, int32(2), b.treeCalls.Load(), "upload invalidates the folder tree")
}

func TestUpload_missingFileIsLocal(t *testing.T) {
	b, client, deps, rec, descs := newMisc(t)
	files := api.NewFiles(client, descs[resources.Files])

	_, out := Upload(context.Background(), deps, files, api.Upload{})
	assert.False(t, out.OK())
	assert.Zero(t, b.uploads.Load())
	last, _ := rec.Last()
	assert.Equal(t, notify.Error, last.Kind)
}

func TestDownload(t *testing.T) {
	_, client, deps, rec, descs := newMisc(t)
	files := api.NewFiles(client, descs[resources.Files])

	var buf bytes.Buffer
	n, err := Download(context.Background(), deps, files, "9", &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.Equal(t, "hello", buf.String())

	_, err = Download(context.Background(), deps, files, "404", &buf)
	require.Error(t, err)
	last, _ := rec.Last()
	assert.Equal(t, notify.Event{Kind: notify.Error, Message: "File not found"}, last)
}

func TestSingleton_editAndSave(t *testing.T) {
	b, client, deps, rec, descs := newMisc(t)
	c := NewSingletonController(client, resources.BindCompany(descs[resources.Company]), deps)
	ctx := context.Background()

	fm, err := c.EditForm(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Acme", fm.Value("name"))

	require.NoError(t, fm.Set("email", "nope"))
	_, _, err = c.Save(ctx, fm)
	require.Error(t, err)
	assert.Zero(t, b.companyPuts.Load())

	require.NoError(t, fm.Set("email", "hello@acme.test"))
	company, out, err := c.Save(ctx, fm)
	require.NoError(t, err)
	require.True(t, out.OK())
	assert.Equal(t, "hello@acme.test", company.Email)
	assert.Equal(t, "Company updated successfully", out.Message)
	assert.Equal(t, []notify.Event{{Kind: notify.Success, Message: "Company updated successfully"}}, rec.Events())

	got, err := c.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hello@acme.test", got.Email, "save invalidates the cached instance")
}

func TestNewApp_wiresDefaults(t *testing.T) {
	cfg := config.Defaults()
	cfg.Observability.Tracing.Enabled = false

	rec := &notify.Recorder{}
	app, err := NewApp(context.Background(), cfg, AppOptions{
		Out:       &bytes.Buffer{},
		Err:       &bytes.Buffer{},
		Store:     auth.NewMemoryStore(auth.Tokens{}),
		Notifier:  rec,
		Confirmer: notify.AssumeYes(),
		Logger:    zap.NewNop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })

	assert.Equal(t, 7, app.Registry.Len())
	desc, err := app.Descriptor(resources.Jobs)
	require.NoError(t, err)
	assert.Equal(t, "/jobs", desc.BasePath)

	deps := app.Deps()
	assert.Same(t, app.Cache, deps.Cache)
	assert.Equal(t, 10, deps.PageSize)

	var buf bytes.Buffer
	require.NoError(t, app.DumpMetrics(&buf))
	assert.Contains(t, buf.String(), "console_definitions_loaded 7")
}

func TestApp_logoutClearsLocalState(t *testing.T) {
	cfg := config.Defaults()
	store := auth.NewMemoryStore(auth.Tokens{})
	rec := &notify.Recorder{}
	app, err := NewApp(context.Background(), cfg, AppOptions{Store: store, Notifier: rec, Confirmer: notify.AssumeYes(), Logger: zap.NewNop()})
	require.NoError(t, err)

	app.Cache.Set(model.Key("users", 1), "cached")
	require.NoError(t, app.Logout(context.Background()))
	assert.Zero(t, app.Cache.Len())
	assert.Equal(t, []notify.Event{{Kind: notify.Info, Message: "Signed out"}}, rec.Events())
}
