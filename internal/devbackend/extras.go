package devbackend

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pitabwire/console/internal/resources"
	"github.com/pitabwire/console/model"
)

const maxUploadBytes = 32 << 20

// mountExtras registers the endpoints that are not plain CRUD.
func (s *Server) mountExtras(r chi.Router) {
	if desc, ok := s.registry.Get(resources.Pages); ok {
		r.Get(desc.BasePath+"/by-slug/{slug}", s.pageBySlug)
		r.Get(desc.BasePath+"/validate-slug", s.validateSlug)
	}
	if desc, ok := s.registry.Get(resources.Folders); ok {
		r.Get(desc.BasePath+"/tree", s.folderTree)
	}
	if desc, ok := s.registry.Get(resources.Files); ok {
		r.Post(desc.BasePath+"/upload", s.upload)
		r.Get(desc.BasePath+"/{id}/download", s.download)
	}
}

func (s *Server) pageBySlug(w http.ResponseWriter, r *http.Request) {
	items := s.collections[resources.Pages].list("", map[string]string{"slug": chi.URLParam(r, "slug")})
	if len(items) == 0 {
		writeError(w, http.StatusNotFound, "Page not found")
		return
	}
	writeJSON(w, http.StatusOK, items[0])
}

func (s *Server) validateSlug(w http.ResponseWriter, r *http.Request) {
	slug := strings.TrimSpace(r.URL.Query().Get("slug"))
	if slug == "" {
		writeError(w, http.StatusBadRequest, "slug is required")
		return
	}
	taken := s.collections[resources.Pages].exists("slug", slug, r.URL.Query().Get("excludePageId"))
	writeJSON(w, http.StatusOK, model.SlugValidation{IsValid: !taken})
}

func (s *Server) folderTree(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, buildTree(s.collections[resources.Folders].list("", nil)))
}

// buildTree nests folders under their parents. Folders whose parent is
// missing are treated as roots.
func buildTree(folders []record) []any {
	known := make(map[string]bool, len(folders))
	for _, f := range folders {
		known[idString(f[idField])] = true
	}
	children := map[string][]record{}
	var roots []record
	for _, f := range folders {
		parent := idString(f["parentFolderId"])
		if parent == "" || !known[parent] {
			roots = append(roots, f)
			continue
		}
		children[parent] = append(children[parent], f)
	}

	seen := map[string]bool{}
	var attach func(nodes []record) []any
	attach = func(nodes []record) []any {
		out := make([]any, 0, len(nodes))
		for _, n := range nodes {
			id := idString(n[idField])
			if seen[id] {
				continue
			}
			seen[id] = true
			subs := attach(children[id])
			n["subFolders"] = subs
			n["subFolderCount"] = len(subs)
			out = append(out, n)
		}
		return out
	}
	return attach(roots)
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "Malformed multipart body")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeFailure(w, model.NewFieldError("file", model.RuleRequired, "Please select a file"))
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Could not read file")
		return
	}

	rec := record{
		"originalFileName": header.Filename,
		"contentType":      contentTypeOf(header.Header.Get("Content-Type"), data),
		"fileSize":         len(data),
		"description":      r.FormValue("description"),
		"downloadCount":    0,
		"createdAt":        s.stamp(),
	}
	rec["fileType"] = fileTypeOf(rec["contentType"].(string))
	rec["isPublic"], _ = strconv.ParseBool(r.FormValue("isPublic"))
	if raw := r.FormValue("folderId"); raw != "" {
		folders, ok := s.collections[resources.Folders]
		if ok {
			_, ok = folders.get(raw)
		}
		if !ok {
			writeFailure(w, model.NewFieldError("folderId", "exists", "Folder not found"))
			return
		}
		id, _ := strconv.ParseInt(raw, 10, 64)
		rec["folderId"] = id
	}

	stored := s.collections[resources.Files].insert(rec)
	s.mu.Lock()
	s.blobs[idString(stored[idField])] = data
	s.mu.Unlock()
	s.adjustFileCount(stored["folderId"], 1)
	writeJSON(w, http.StatusCreated, stored)
}

func contentTypeOf(declared string, data []byte) string {
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	return http.DetectContentType(data)
}

// fileTypeOf classifies a content type: 0 document, 1 image, 2 video,
// 3 audio.
func fileTypeOf(contentType string) int {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return 1
	case strings.HasPrefix(contentType, "video/"):
		return 2
	case strings.HasPrefix(contentType, "audio/"):
		return 3
	default:
		return 0
	}
}

func (s *Server) download(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, found, _ := s.collections[resources.Files].mutate(id, func(rec record) error {
		n, _ := rec["downloadCount"].(float64)
		if i, ok := rec["downloadCount"].(int); ok {
			n = float64(i)
		}
		rec["downloadCount"] = n + 1
		return nil
	})
	s.mu.Lock()
	data, ok := s.blobs[id]
	s.mu.Unlock()
	if !found || !ok {
		writeError(w, http.StatusNotFound, "File not found")
		return
	}

	name, _ := rec["originalFileName"].(string)
	ct, _ := rec["contentType"].(string)
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Disposition", `attachment; filename="`+strings.ReplaceAll(name, `"`, "")+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// adjustFileCount moves a folder's fileCount by delta.
func (s *Server) adjustFileCount(folderID any, delta int) {
	id := idString(folderID)
	folders, ok := s.collections[resources.Folders]
	if id == "" || !ok {
		return
	}
	_, _, _ = folders.mutate(id, func(rec record) error {
		n := 0
		switch v := rec["fileCount"].(type) {
		case int:
			n = v
		case float64:
			n = int(v)
		}
		rec["fileCount"] = max(n+delta, 0)
		return nil
	})
}

func (s *Server) setPassword(userID, password string) {
	s.mu.Lock()
	s.passwords[userID] = password
	s.mu.Unlock()
}

func (s *Server) checkPassword(userID, password string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	want, ok := s.passwords[userID]
	return ok && want == password
}

// userByEmail finds a user record, case-insensitively.
func (s *Server) userByEmail(email string) (record, bool) {
	users, ok := s.collections[resources.Users]
	if !ok || email == "" {
		return nil, false
	}
	for _, u := range users.list("", nil) {
		if e, _ := u["email"].(string); strings.EqualFold(e, email) {
			return u, true
		}
	}
	return nil, false
}

func (s *Server) tokenResponse(pair tokenPair, user record) model.TokenResponse {
	resp := model.TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.ExpiresAt.UTC().Format(time.RFC3339),
	}
	var u model.User
	if user != nil && decodeInto(user, &u) == nil {
		resp.User = &u
	}
	return resp
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	body, err := decodeBody(r)
	if err != nil || decodeInto(body, &req) != nil {
		writeError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeFailure(w, model.NewFieldError("email", model.RuleRequired, "Email and password are required"))
		return
	}
	user, ok := s.userByEmail(req.Email)
	if !ok || !s.checkPassword(idString(user[idField]), req.Password) {
		s.log(r).Warn("login rejected", zap.String("email", req.Email))
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	if user["isActive"] == false {
		writeError(w, http.StatusForbidden, "Account is disabled")
		return
	}

	pair, err := s.issuer.issue(req.Email)
	if err != nil {
		writeFailure(w, err)
		return
	}
	now := s.stamp()
	if updated, _, err := s.collections[resources.Users].mutate(idString(user[idField]), func(rec record) error {
		rec["lastLoginAt"] = now
		return nil
	}); err == nil && updated != nil {
		user = updated
	}
	s.log(r).Info("login", zap.String("email", req.Email))
	writeJSON(w, http.StatusOK, s.tokenResponse(pair, user))
}

func refreshTokenOf(r *http.Request) string {
	body, err := decodeBody(r)
	if err != nil {
		return ""
	}
	token, _ := body["refreshToken"].(string)
	return token
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	pair, subject, err := s.issuer.rotate(refreshTokenOf(r))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}
	user, _ := s.userByEmail(subject)
	writeJSON(w, http.StatusOK, s.tokenResponse(pair, user))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.issuer.revoke(refreshTokenOf(r))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := s.userByEmail(SubjectFrom(r.Context()))
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unknown user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}
