package images

import (
	"strings"
	"time"
)

// UntitledImage is the display title used when an image carries no alt description.
const UntitledImage = "Untitled Image"

// DefaultPageSize matches the gallery grid page size.
const DefaultPageSize = 12

// Image is a read-only photo as returned by the remote image API.
type Image struct {
	ID             string    `json:"id"`
	Description    string    `json:"description"`
	AltDescription string    `json:"alt_description"`
	Width          int       `json:"width"`
	Height         int       `json:"height"`
	Color          string    `json:"color"`
	CreatedAt      time.Time `json:"created_at"`
	URLs           ImageURLs `json:"urls"`
	Owner          Owner     `json:"user"`
}

// ImageURLs lists the renderable sizes of an image.
type ImageURLs struct {
	Raw     string `json:"raw"`
	Full    string `json:"full"`
	Regular string `json:"regular"`
	Small   string `json:"small"`
	Thumb   string `json:"thumb"`
}

// Owner is the photographer credited for an image.
type Owner struct {
	ID       string     `json:"id"`
	Username string     `json:"username"`
	Name     string     `json:"name"`
	Links    OwnerLinks `json:"links"`
}

// OwnerLinks holds the owner's profile link.
type OwnerLinks struct {
	HTML string `json:"html"`
}

// Title returns the alt description as published, or UntitledImage when it is blank.
func (i Image) Title() string {
	if strings.TrimSpace(i.AltDescription) == "" {
		return UntitledImage
	}
	return i.AltDescription
}

// TitleOf is Title for an image that may not have been loaded.
func TitleOf(image *Image) string {
	if image == nil {
		return UntitledImage
	}
	return image.Title()
}

// SearchResult is one page of search results.
type SearchResult struct {
	Total      int     `json:"total"`
	TotalPages int     `json:"total_pages"`
	Results    []Image `json:"results"`
}
