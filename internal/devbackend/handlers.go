package devbackend

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pitabwire/console/internal/form"
	"github.com/pitabwire/console/internal/resources"
	"github.com/pitabwire/console/model"
)

// statusError is a handler failure with an HTTP status.
type statusError struct {
	status  int
	message string
}

func (e *statusError) Error() string { return e.message }

func conflict(msg string) error { return &statusError{status: http.StatusConflict, message: msg} }

// writeFailure maps handler errors onto responses.
func writeFailure(w http.ResponseWriter, err error) {
	var verr *model.ValidationError
	if errors.As(err, &verr) {
		writeValidation(w, verr)
		return
	}
	var serr *statusError
	if errors.As(err, &serr) {
		writeError(w, serr.status, serr.message)
		return
	}
	writeError(w, http.StatusInternalServerError, "Internal server error")
}

// filterFields maps list query filters onto record fields.
var filterFields = map[string]string{
	"parentId": "parentFolderId",
}

func positiveInt(raw string, fallback int) (int, bool) {
	if raw == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(raw)
	return n, err == nil && n > 0
}

func (s *Server) list(desc model.ResourceDescriptor, c *collection) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filters := map[string]string{}
		for _, f := range desc.Filters {
			if v := q.Get(f); v != "" {
				field := f
				if mapped, ok := filterFields[f]; ok {
					field = mapped
				}
				filters[field] = v
			}
		}
		items := c.list(q.Get("search"), filters)
		if desc.ListStyle == model.ListArray {
			writeJSON(w, http.StatusOK, items)
			return
		}

		defaultSize := desc.PageSize
		if defaultSize <= 0 {
			defaultSize = 10
		}
		page, okPage := positiveInt(q.Get("page"), 1)
		pageSize, okSize := positiveInt(q.Get("pageSize"), defaultSize)
		if !okPage || !okSize {
			writeError(w, http.StatusBadRequest, "page and pageSize must be positive integers")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items":      paginate(items, page, pageSize),
			"totalCount": len(items),
			"pageNumber": page,
			"pageSize":   pageSize,
		})
	}
}

func (s *Server) get(desc model.ResourceDescriptor, c *collection) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, ok := c.get(chi.URLParam(r, "id"))
		if !ok {
			writeError(w, http.StatusNotFound, desc.Title()+" not found")
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

// validate runs the descriptor form rules against body. An unknown form id
// uses the first form; resources without forms accept any body.
func validate(desc model.ResourceDescriptor, formID string, body record) error {
	if len(desc.Forms) == 0 {
		return nil
	}
	if _, ok := desc.Form(formID); !ok {
		formID = ""
	}
	f, err := form.FromDescriptor(desc, formID)
	if err != nil {
		return nil
	}
	f.Reset(body)
	return f.Validate()
}

func (s *Server) create(desc model.ResourceDescriptor, c *collection, formID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := decodeBody(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Malformed JSON body")
			return
		}
		if err := validate(desc, formID, body); err != nil {
			writeFailure(w, err)
			return
		}
		delete(body, idField)
		password, err := s.prepareCreate(r, desc, c, formID, body)
		if err != nil {
			writeFailure(w, err)
			return
		}
		rec := c.insert(body)
		if password != "" {
			s.setPassword(idString(rec[idField]), password)
		}
		s.log(r).Info("created", zap.String("resource", desc.Name), zap.String("id", idString(rec[idField])))
		writeJSON(w, http.StatusCreated, rec)
	}
}

// prepareCreate fills server-owned fields. For users it strips and returns
// the password, which is never stored on the record.
func (s *Server) prepareCreate(r *http.Request, desc model.ResourceDescriptor, c *collection, formID string, body record) (string, error) {
	now := s.stamp()
	body["createdAt"] = now
	body["updatedAt"] = now

	switch desc.Name {
	case resources.Users:
		email, _ := body["email"].(string)
		if c.exists("email", email, "") {
			return "", conflict("Email is already in use")
		}
		password, _ := body["password"].(string)
		delete(body, "password")
		setDefault(body, "isActive", true)
		setDefault(body, "isLocked", false)
		return password, nil
	case resources.Pages:
		slug, _ := body["slug"].(string)
		if c.exists("slug", slug, "") {
			return "", conflict("Slug is already in use")
		}
		setDefault(body, "status", model.PageDraft)
		setDefault(body, "isTemplate", false)
		if body["status"] == model.PagePublished {
			body["publishedAt"] = now
		}
	case resources.Locations:
		body["isMainLocation"] = c.len() == 0
		setDefault(body, "isActive", true)
	case resources.Folders:
		body["path"] = s.folderPath(body)
		body["fileCount"] = 0
		body["subFolderCount"] = 0
		setDefault(body, "isPublic", false)
		setDefault(body, "folderType", model.FolderGeneral)
	case resources.Jobs:
		prepareJob(desc, formID, body, now, SubjectFrom(r.Context()))
	}
	return "", nil
}

func setDefault(body record, key string, v any) {
	if _, ok := body[key]; !ok {
		body[key] = v
	}
}

func (s *Server) folderPath(body record) string {
	name, _ := body["name"].(string)
	parentID := idString(body["parentFolderId"])
	if parentID == "" {
		delete(body, "parentFolderId")
		return "/" + name
	}
	if folders, ok := s.collections[resources.Folders]; ok {
		if parent, found := folders.get(parentID); found {
			p, _ := parent["path"].(string)
			return strings.TrimRight(p, "/") + "/" + name
		}
	}
	return "/" + name
}

// prepareJob turns a deployment or template-sync form into a pending job.
func prepareJob(desc model.ResourceDescriptor, formID string, body record, now, createdBy string) {
	spec, _ := desc.Form(formID)
	meta := make(record, len(body))
	for k, v := range body {
		if k != "createdAt" && k != "updatedAt" {
			meta[k] = v
		}
	}
	scheduled, _ := body["scheduledAt"].(string)
	if scheduled == "" {
		scheduled = now
	}

	title := spec.Label
	switch spec.ID {
	case "deployment":
		title = "Deployment " + stringOf(body["version"])
	case "template-sync":
		title = "Template sync " + stringOf(body["masterTemplateVersion"])
	}
	for k := range body {
		delete(body, k)
	}
	body["type"] = spec.ID
	body["status"] = model.JobPending
	body["title"] = strings.TrimSpace(title)
	body["description"] = stringOf(meta["releaseNotes"])
	body["scheduledAt"] = scheduled
	body["createdBy"] = createdBy
	body["metadata"] = meta
	body["progress"] = 0
	body["createdAt"] = now
	body["updatedAt"] = now
}

func stringOf(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return idString(v)
}

func (s *Server) update(desc model.ResourceDescriptor, c *collection) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		body, err := decodeBody(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Malformed JSON body")
			return
		}
		if err := validate(desc, "edit", body); err != nil {
			writeFailure(w, err)
			return
		}
		switch desc.Name {
		case resources.Users:
			if email, _ := body["email"].(string); c.exists("email", email, id) {
				writeFailure(w, conflict("Email is already in use"))
				return
			}
		case resources.Pages:
			if slug, _ := body["slug"].(string); slug != "" && c.exists("slug", slug, id) {
				writeFailure(w, conflict("Slug is already in use"))
				return
			}
		}
		delete(body, "password")
		delete(body, "isMainLocation")

		now := s.stamp()
		rec, found, err := c.mutate(id, func(rec record) error {
			for k, v := range body {
				rec[k] = v
			}
			rec["updatedAt"] = now
			return nil
		})
		if !found {
			writeError(w, http.StatusNotFound, desc.Title()+" not found")
			return
		}
		if err != nil {
			writeFailure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func (s *Server) remove(desc model.ResourceDescriptor, c *collection) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var removed record
		found, err := c.remove(id, func(rec record) error {
			if desc.Name == resources.Locations && rec["isMainLocation"] == true {
				return conflict("The main location cannot be deleted")
			}
			removed = rec
			return nil
		})
		if !found {
			writeError(w, http.StatusNotFound, desc.Title()+" not found")
			return
		}
		if err != nil {
			writeFailure(w, err)
			return
		}
		if desc.Name == resources.Files {
			s.mu.Lock()
			delete(s.blobs, id)
			s.mu.Unlock()
			s.adjustFileCount(removed["folderId"], -1)
		}
		s.log(r).Info("deleted", zap.String("resource", desc.Name), zap.String("id", id))
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) action(desc model.ResourceDescriptor, c *collection, spec model.ActionSpec) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var (
			rec   record
			found bool
			err   error
		)
		if spec.ID == "set-main" {
			rec, found = c.setExclusive(id, "isMainLocation")
		} else {
			now := s.stamp()
			rec, found, err = c.mutate(id, func(rec record) error {
				if err := applyAction(spec.ID, rec, now); err != nil {
					return err
				}
				rec["updatedAt"] = now
				return nil
			})
		}
		if !found {
			writeError(w, http.StatusNotFound, desc.Title()+" not found")
			return
		}
		if err != nil {
			writeFailure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

// applyAction changes rec for the named lifecycle action. Unknown actions
// only touch updatedAt.
func applyAction(id string, rec record, now string) error {
	switch id {
	case "publish":
		rec["status"] = model.PagePublished
		rec["publishedAt"] = now
	case "unpublish":
		rec["status"] = model.PageDraft
		delete(rec, "publishedAt")
	case "activate":
		rec["isActive"] = true
	case "deactivate":
		rec["isActive"] = false
	case "cancel":
		if st := rec["status"]; st != model.JobPending && st != model.JobRunning {
			return conflict("Only pending or running jobs can be cancelled")
		}
		rec["status"] = model.JobCancelled
		rec["completedAt"] = now
	case "retry":
		if rec["status"] != model.JobFailed {
			return conflict("Only failed jobs can be retried")
		}
		rec["status"] = model.JobPending
		rec["progress"] = 0
		delete(rec, "errorMessage")
		delete(rec, "completedAt")
	}
	return nil
}

func (s *Server) getSingleton(desc model.ResourceDescriptor) http.HandlerFunc {
	one := s.singletons[desc.Name]
	return func(w http.ResponseWriter, r *http.Request) {
		rec := one.get()
		if rec == nil {
			writeError(w, http.StatusNotFound, desc.Title()+" not found")
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func (s *Server) putSingleton(desc model.ResourceDescriptor) http.HandlerFunc {
	one := s.singletons[desc.Name]
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := decodeBody(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Malformed JSON body")
			return
		}
		if err := validate(desc, "", body); err != nil {
			writeFailure(w, err)
			return
		}
		body["updatedAt"] = s.stamp()
		writeJSON(w, http.StatusOK, one.merge(body))
	}
}

// decodeInto converts a record into a typed entity.
func decodeInto(rec record, v any) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
