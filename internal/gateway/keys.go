package gateway

import "strings"

// File categories. Every stored key carries exactly one of these as its
// third path segment.
const (
	CategoryDocuments = "documents"
	CategoryImages    = "images"
	CategoryVideos    = "videos"
	CategoryAudio     = "audio"
	CategoryOthers    = "others"
)

// documentTypes is the fixed set of MIME types filed under documents.
var documentTypes = map[string]bool{
	"application/pdf":    true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/vnd.ms-excel": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
	"application/vnd.ms-powerpoint":                                     true,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": true,
	"application/rtf": true,
	"text/plain":      true,
	"text/csv":        true,
}

// Category maps a declared MIME type to a storage category.
func Category(contentType string) string {
	// Strip parameters like "; charset=utf-8".
	if idx := strings.IndexByte(contentType, ';'); idx >= 0 {
		contentType = contentType[:idx]
	}
	contentType = strings.TrimSpace(strings.ToLower(contentType))

	switch {
	case strings.HasPrefix(contentType, "image/"):
		return CategoryImages
	case strings.HasPrefix(contentType, "video/"):
		return CategoryVideos
	case strings.HasPrefix(contentType, "audio/"):
		return CategoryAudio
	case documentTypes[contentType]:
		return CategoryDocuments
	default:
		return CategoryOthers
	}
}

// DeriveKey maps an owner, display filename, and declared MIME type to the
// canonical storage key and its category. The filename is used verbatim as
// the key suffix: re-uploading the same filename overwrites the prior blob.
// There is no versioning.
func DeriveKey(owner, filename, contentType string) (key, category string) {
	category = Category(contentType)
	return "owner/" + owner + "/" + category + "/" + filename, category
}

// ownerPrefix is the key prefix all of an identity's files live under.
func ownerPrefix(owner string) string {
	return "owner/" + owner + "/"
}

// keyCategory extracts the category segment from a storage key, falling back
// to others when the key does not have the canonical four-segment layout.
func keyCategory(key string) string {
	parts := strings.Split(key, "/")
	if len(parts) >= 4 && parts[0] == "owner" {
		switch parts[2] {
		case CategoryDocuments, CategoryImages, CategoryVideos, CategoryAudio, CategoryOthers:
			return parts[2]
		}
	}
	return CategoryOthers
}

// keyBasename returns the last segment of a storage key.
func keyBasename(key string) string {
	if idx := strings.LastIndexByte(key, '/'); idx >= 0 {
		return key[idx+1:]
	}
	return key
}
