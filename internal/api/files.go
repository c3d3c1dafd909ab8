package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-resty/resty/v2"

	"github.com/pitabwire/console/model"
)

// Upload describes a multipart file upload.
type Upload struct {
	FileName    string
	Content     io.Reader
	FolderID    *int64
	Description string
	IsPublic    bool
	// IdempotencyKey is sent like any other mutation key.
	IdempotencyKey string
}

// Files adds upload and download to the files resource. Both are
// pass-through I/O.
type Files struct {
	*Resource[model.FileEntity]
}

// NewFiles binds the files descriptor.
func NewFiles(client *Client, desc model.ResourceDescriptor) *Files {
	return &Files{Resource: NewResource[model.FileEntity](client, desc)}
}

// Upload posts the file as multipart/form-data to {base}/upload.
func (f *Files) Upload(ctx context.Context, up Upload) (model.FileEntity, error) {
	var file model.FileEntity
	if up.FileName == "" || up.Content == nil {
		return file, model.NewFieldError("file", model.RuleRequired, "Please select a file")
	}

	form := map[string]string{"isPublic": strconv.FormatBool(up.IsPublic)}
	if up.Description != "" {
		form["description"] = up.Description
	}
	if up.FolderID != nil {
		form["folderId"] = strconv.FormatInt(*up.FolderID, 10)
	}

	// A non-seekable body cannot be replayed after a 401, so a token known to
	// be expired is refreshed up front.
	if s := f.client.session; s != nil && s.Expired() {
		if _, err := s.Refresh(ctx, s.AccessToken()); err != nil {
			return file, err
		}
	}

	_, err := f.client.Do(ctx, Call{
		Resource:       f.desc.Name,
		Method:         http.MethodPost,
		Path:           f.path("upload"),
		Result:         &file,
		IdempotencyKey: up.IdempotencyKey,
		Prepare: func(req *resty.Request) {
			if seeker, ok := up.Content.(io.Seeker); ok {
				_, _ = seeker.Seek(0, io.SeekStart)
			}
			req.SetFileReader("file", up.FileName, up.Content).SetFormData(form)
		},
	})
	return file, err
}

// Download streams the file body into w and returns the byte count.
func (f *Files) Download(ctx context.Context, id string, w io.Writer) (int64, error) {
	if err := requireID(id); err != nil {
		return 0, err
	}
	resp, err := f.client.Do(ctx, Call{
		Resource: f.desc.Name,
		Method:   http.MethodGet,
		Path:     f.path(id, "download"),
		Stream:   true,
	})
	if err != nil {
		return 0, err
	}
	body := resp.RawBody()
	defer body.Close()

	n, err := io.Copy(w, body)
	if err != nil {
		return n, fmt.Errorf("api: downloading file %s: %w", id, err)
	}
	return n, nil
}
