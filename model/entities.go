package model

import (
	"strconv"
	"strings"
	"time"
)

// Entity is implemented by every resource item the console manages.
type Entity interface {
	EntityID() string
	DisplayName() string
}

// Page statuses.
const (
	PageDraft     = "draft"
	PagePublished = "published"
	PageArchived  = "archived"
	PageScheduled = "scheduled"
)

// ContentPage is a CMS page. The page-builder component tree is opaque here.
type ContentPage struct {
	ID              int64          `json:"id"`
	Name            string         `json:"name"`
	Title           string         `json:"title"`
	Slug            string         `json:"slug"`
	Description     string         `json:"description,omitempty"`
	Content         string         `json:"content,omitempty"`
	Status          string         `json:"status"`
	PublishedAt     *time.Time     `json:"publishedAt,omitempty"`
	ScheduledAt     *time.Time     `json:"scheduledAt,omitempty"`
	MetaTitle       string         `json:"metaTitle,omitempty"`
	MetaDescription string         `json:"metaDescription,omitempty"`
	Author          string         `json:"author,omitempty"`
	IsTemplate      bool           `json:"isTemplate"`
	Order           int            `json:"order"`
	Settings        map[string]any `json:"settings,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
	LastModifiedBy  string         `json:"lastModifiedBy,omitempty"`
}

func (p ContentPage) EntityID() string    { return strconv.FormatInt(p.ID, 10) }
func (p ContentPage) DisplayName() string { return p.Name }

// SlugValidation is the response of the slug availability check.
type SlugValidation struct {
	IsValid bool `json:"isValid"`
}

// User roles.
const (
	RoleCustomer = 0
	RoleAdmin    = 1
	RoleDev      = 2
)

// User is a console or tenant user.
type User struct {
	ID          int64      `json:"id"`
	Email       string     `json:"email"`
	Username    string     `json:"username"`
	FirstName   string     `json:"firstName"`
	LastName    string     `json:"lastName"`
	Role        int        `json:"role"`
	RoleName    string     `json:"roleName,omitempty"`
	IsActive    bool       `json:"isActive"`
	IsLocked    bool       `json:"isLocked"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
	Timezone    string     `json:"timezone,omitempty"`
	Language    string     `json:"language,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

func (u User) EntityID() string { return strconv.FormatInt(u.ID, 10) }

// DisplayName returns "First Last".
func (u User) DisplayName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Company is the tenant's company profile. It is a singleton resource.
type Company struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Website     string     `json:"website,omitempty"`
	Email       string     `json:"email,omitempty"`
	Phone       string     `json:"phone,omitempty"`
	Timezone    string     `json:"timezone,omitempty"`
	Currency    string     `json:"currency,omitempty"`
	Language    string     `json:"language,omitempty"`
	IsActive    bool       `json:"isActive"`
	Locations   []Location `json:"locations,omitempty"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func (c Company) EntityID() string    { return strconv.FormatInt(c.ID, 10) }
func (c Company) DisplayName() string { return c.Name }

// Address is a postal address nested under a location.
type Address struct {
	ID          int64  `json:"id,omitempty"`
	Street      string `json:"street"`
	Street2     string `json:"street2,omitempty"`
	City        string `json:"city"`
	State       string `json:"state"`
	Country     string `json:"country"`
	PostalCode  string `json:"postalCode"`
	IsDefault   bool   `json:"isDefault"`
	AddressType string `json:"addressType,omitempty"`
}

// ContactDetails is a contact record nested under a location.
type ContactDetails struct {
	ID           int64  `json:"id,omitempty"`
	PrimaryPhone string `json:"primaryPhone,omitempty"`
	Mobile       string `json:"mobile,omitempty"`
	Email        string `json:"email,omitempty"`
	Website      string `json:"website,omitempty"`
	IsDefault    bool   `json:"isDefault"`
	ContactType  string `json:"contactType,omitempty"`
}

// OpeningHour is one weekday's opening window.
type OpeningHour struct {
	ID            int64  `json:"id,omitempty"`
	DayOfWeek     int    `json:"dayOfWeek"`
	OpenTime      string `json:"openTime"`
	CloseTime     string `json:"closeTime"`
	IsClosed      bool   `json:"isClosed"`
	IsOpen24Hours bool   `json:"isOpen24Hours"`
}

// Location is a company site.
type Location struct {
	ID             int64            `json:"id"`
	Name           string           `json:"name"`
	Description    string           `json:"description,omitempty"`
	LocationCode   string           `json:"locationCode,omitempty"`
	LocationType   string           `json:"locationType,omitempty"`
	IsMainLocation bool             `json:"isMainLocation"`
	IsActive       bool             `json:"isActive"`
	OpeningHours   []OpeningHour    `json:"openingHours,omitempty"`
	Addresses      []Address        `json:"addresses,omitempty"`
	ContactDetails []ContactDetails `json:"contactDetails,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

func (l Location) EntityID() string    { return strconv.FormatInt(l.ID, 10) }
func (l Location) DisplayName() string { return l.Name }

// PrimaryContact returns the default contact's phone or email, or
// "No contact".
func (l Location) PrimaryContact() string {
	for _, c := range l.ContactDetails {
		if !c.IsDefault {
			continue
		}
		if c.PrimaryPhone != "" {
			return c.PrimaryPhone
		}
		if c.Email != "" {
			return c.Email
		}
	}
	for _, c := range l.ContactDetails {
		if c.PrimaryPhone != "" {
			return c.PrimaryPhone
		}
		if c.Email != "" {
			return c.Email
		}
	}
	return "No contact"
}

// Folder types.
const (
	FolderGeneral = iota
	FolderImages
	FolderDocuments
	FolderVideos
	FolderAudio
	FolderUserAvatars
	FolderCompanyAssets
	FolderTemporary
)

// Folder groups files.
type Folder struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	Path           string    `json:"path"`
	ParentFolderID *int64    `json:"parentFolderId,omitempty"`
	SubFolders     []Folder  `json:"subFolders,omitempty"`
	IsPublic       bool      `json:"isPublic"`
	FolderType     int       `json:"folderType"`
	FileCount      int       `json:"fileCount"`
	SubFolderCount int       `json:"subFolderCount"`
	CreatedAt      time.Time `json:"createdAt"`
}

func (f Folder) EntityID() string    { return strconv.FormatInt(f.ID, 10) }
func (f Folder) DisplayName() string { return f.Name }

// FileEntity is an uploaded file.
type FileEntity struct {
	ID               int64     `json:"id"`
	OriginalFileName string    `json:"originalFileName"`
	ContentType      string    `json:"contentType"`
	FileSize         int64     `json:"fileSize"`
	FileType         int       `json:"fileType"`
	Description      string    `json:"description,omitempty"`
	IsPublic         bool      `json:"isPublic"`
	FolderID         *int64    `json:"folderId,omitempty"`
	DownloadCount    int       `json:"downloadCount"`
	CreatedAt        time.Time `json:"createdAt"`
}

func (f FileEntity) EntityID() string    { return strconv.FormatInt(f.ID, 10) }
func (f FileEntity) DisplayName() string { return f.OriginalFileName }

// Job statuses.
const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
	JobCancelled = "cancelled"
)

// Job is a deployment or template-sync job.
type Job struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Status       string         `json:"status"`
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	ScheduledAt  time.Time      `json:"scheduledAt"`
	StartedAt    *time.Time     `json:"startedAt,omitempty"`
	CompletedAt  *time.Time     `json:"completedAt,omitempty"`
	CreatedBy    string         `json:"createdBy"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Progress     int            `json:"progress"`
	ErrorMessage string         `json:"errorMessage,omitempty"`
}

func (j Job) EntityID() string    { return j.ID }
func (j Job) DisplayName() string { return j.Title }

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe,omitempty"`
}

// TokenResponse is returned by login and refresh.
type TokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresAt    string `json:"expiresAt"`
	User         *User  `json:"user,omitempty"`
}
