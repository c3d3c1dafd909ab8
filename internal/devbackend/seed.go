package devbackend

import (
	"time"

	"github.com/pitabwire/console/internal/resources"
	"github.com/pitabwire/console/model"
)

func ptr[T any](v T) *T { return &v }

// seed fills every loaded resource with a small, consistent data set.
func (s *Server) seed() {
	now := s.now().UTC().Truncate(time.Second)
	day := 24 * time.Hour

	s.seedCollection(resources.Users,
		model.User{ID: 1, Email: DefaultEmail, Username: "admin", FirstName: "Ada", LastName: "Admin",
			Role: model.RoleAdmin, RoleName: "Admin", IsActive: true, CreatedAt: now.Add(-30 * day)},
		model.User{ID: 2, Email: "jane@example.com", Username: "jane", FirstName: "Jane", LastName: "Doe",
			Role: model.RoleCustomer, RoleName: "Customer", IsActive: true, CreatedAt: now.Add(-10 * day)},
		model.User{ID: 3, Email: "john@example.com", Username: "john", FirstName: "John", LastName: "Smith",
			Role: model.RoleDev, RoleName: "Developer", IsActive: false, CreatedAt: now.Add(-5 * day)},
	)
	if _, ok := s.collections[resources.Users]; ok {
		s.setPassword("1", DefaultPassword)
	}

	s.seedCollection(resources.Pages,
		model.ContentPage{ID: 1, Name: "Home", Title: "Welcome", Slug: "home", Status: model.PagePublished,
			PublishedAt: ptr(now.Add(-20 * day)), Author: "admin", Order: 1, CreatedAt: now.Add(-20 * day), UpdatedAt: now.Add(-2 * day)},
		model.ContentPage{ID: 2, Name: "About", Title: "About us", Slug: "about", Status: model.PageDraft,
			Author: "admin", Order: 2, CreatedAt: now.Add(-15 * day), UpdatedAt: now.Add(-day)},
		model.ContentPage{ID: 3, Name: "Pricing", Title: "Pricing", Slug: "pricing", Status: model.PageScheduled,
			ScheduledAt: ptr(now.Add(7 * day)), Author: "jane", Order: 3, CreatedAt: now.Add(-3 * day), UpdatedAt: now.Add(-3 * day)},
	)

	company := model.Company{ID: 1, Name: "Acme Inc.", Description: "Makers of everything", Website: "https://acme.example.com",
		Email: "info@acme.example.com", Phone: "555-0100", Timezone: "UTC", Currency: "USD", Language: "en",
		IsActive: true, UpdatedAt: now.Add(-day)}
	if one, ok := s.singletons[resources.Company]; ok {
		one.merge(model.ToMap(company))
	}

	s.seedCollection(resources.Locations,
		model.Location{ID: 1, Name: "Headquarters", LocationCode: "HQ", LocationType: "office", IsMainLocation: true, IsActive: true,
			Addresses:      []model.Address{{Street: "1 Main St", City: "Springfield", State: "IL", Country: "US", PostalCode: "62701", IsDefault: true}},
			ContactDetails: []model.ContactDetails{{PrimaryPhone: "555-0100", Email: "hq@acme.example.com", IsDefault: true}},
			CreatedAt:      now.Add(-30 * day), UpdatedAt: now.Add(-30 * day)},
		model.Location{ID: 2, Name: "Warehouse", LocationCode: "WH1", LocationType: "warehouse", IsActive: true,
			Addresses: []model.Address{{Street: "99 Dock Rd", City: "Springfield", State: "IL", Country: "US", PostalCode: "62702", IsDefault: true}},
			CreatedAt: now.Add(-20 * day), UpdatedAt: now.Add(-20 * day)},
	)

	s.seedCollection(resources.Folders,
		model.Folder{ID: 1, Name: "Documents", Path: "/Documents", FolderType: model.FolderDocuments, FileCount: 1, CreatedAt: now.Add(-10 * day)},
		model.Folder{ID: 2, Name: "Invoices", Path: "/Documents/Invoices", ParentFolderID: ptr(int64(1)), FolderType: model.FolderDocuments, CreatedAt: now.Add(-9 * day)},
		model.Folder{ID: 3, Name: "Images", Path: "/Images", FolderType: model.FolderImages, IsPublic: true, CreatedAt: now.Add(-8 * day)},
	)

	welcome := []byte("Welcome to the console.\n")
	if files, ok := s.collections[resources.Files]; ok {
		files.insert(model.ToMap(model.FileEntity{ID: 1, OriginalFileName: "welcome.txt", ContentType: "text/plain; charset=utf-8",
			FileSize: int64(len(welcome)), FolderID: ptr(int64(1)), CreatedAt: now.Add(-7 * day)}))
		s.blobs["1"] = welcome
	}

	s.seedCollection(resources.Jobs,
		model.Job{ID: "3f1c8a52-6f0e-4c53-9a57-1d2e0c7b9a01", Type: "deployment", Status: model.JobCompleted, Title: "Deployment 1.4.0",
			ScheduledAt: now.Add(-2 * day), StartedAt: ptr(now.Add(-2 * day)), CompletedAt: ptr(now.Add(-2*day + time.Hour)),
			CreatedBy: DefaultEmail, Progress: 100},
		model.Job{ID: "9b7e2d10-1a4f-4e8b-8c3d-5f6a7b8c9d02", Type: "template-sync", Status: model.JobFailed, Title: "Template sync 2.1",
			ScheduledAt: now.Add(-day), StartedAt: ptr(now.Add(-day)), CreatedBy: DefaultEmail, Progress: 40,
			ErrorMessage: "template repository unreachable"},
		model.Job{ID: "c4d5e6f7-8a9b-4c0d-9e1f-2a3b4c5d6e03", Type: "deployment", Status: model.JobPending, Title: "Deployment 1.5.0",
			ScheduledAt: now.Add(day), CreatedBy: DefaultEmail},
	)
}

func (s *Server) seedCollection(name string, items ...model.Entity) {
	c, ok := s.collections[name]
	if !ok {
		return
	}
	for _, item := range items {
		c.insert(model.ToMap(item))
	}
}
