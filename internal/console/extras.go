package console

import (
	"context"
	"io"

	"github.com/google/uuid"

	"github.com/pitabwire/console/internal/api"
	"github.com/pitabwire/console/internal/notify"
	"github.com/pitabwire/console/internal/query"
	"github.com/pitabwire/console/model"
)

// FolderTree returns the folder hierarchy, cached under its own key so
// folder and file mutations invalidate it.
func FolderTree(ctx context.Context, deps Deps, folders *api.Folders) ([]model.Folder, error) {
	deps = deps.withDefaults()
	tree, _, err := query.Get(ctx, deps.Cache, model.Key(model.FolderTreeKey), folders.Tree, deps.Query)
	return tree, err
}

// Upload posts a file and reports the outcome like any other mutation.
func Upload(ctx context.Context, deps Deps, files *api.Files, up api.Upload) (model.FileEntity, query.Outcome) {
	deps = deps.withDefaults()
	if up.IdempotencyKey == "" {
		up.IdempotencyKey = uuid.NewString()
	}
	cfg := query.ForDescriptor(files.Descriptor(), model.MutationUpload)
	return query.Mutate(ctx, query.NewMutation(deps.Cache, deps.Notifier, cfg), func(ctx context.Context) (model.FileEntity, error) {
		return files.Upload(ctx, up)
	})
}

// Download streams a file into w. Failures are reported through the
// notifier.
func Download(ctx context.Context, deps Deps, files *api.Files, id string, w io.Writer) (int64, error) {
	deps = deps.withDefaults()
	n, err := files.Download(ctx, id, w)
	if err != nil {
		deps.Notifier.Notify(ctx, notify.Error, model.MessageFor(err, "Failed to download file"))
	}
	return n, err
}
