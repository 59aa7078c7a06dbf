package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"drivegate/internal/blob"
	"drivegate/internal/registry"
	"drivegate/internal/share"
)

// errorResponse is the uniform error body: {"detail": "..."}.
type errorResponse struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}

// writeDomainError converts the error taxonomy to an HTTP response. No error
// crosses the process boundary unhandled; anything unclassified becomes a
// plain 500.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, registry.ErrNotFound), errors.Is(err, blob.ErrNotFound), errors.Is(err, share.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, share.ErrExpired):
		writeError(w, http.StatusForbidden, "share has expired")
	case errors.Is(err, share.ErrExhausted):
		writeError(w, http.StatusForbidden, "share download limit reached")
	case errors.Is(err, share.ErrBadCredential):
		writeError(w, http.StatusForbidden, "invalid share credentials")
	case errors.Is(err, blob.ErrAccessDenied):
		writeError(w, http.StatusInternalServerError, "storage access denied")
	case errors.Is(err, blob.ErrUnavailable):
		writeError(w, http.StatusInternalServerError, "storage unavailable")
	case errors.Is(err, registry.ErrUnavailable):
		writeError(w, http.StatusInternalServerError, "registry unavailable")
	case errors.Is(err, ErrRegistrationFailed):
		// Distinguished from a pure storage failure: the blob write
		// succeeded and a compensating delete has been attempted.
		writeError(w, http.StatusInternalServerError, "metadata registration failed; uploaded blob rolled back")
	case errors.Is(err, ErrInconsistentState):
		writeError(w, http.StatusInternalServerError, "inconsistent state: blob deleted but metadata record remains")
	default:
		var rejected *registry.RejectedError
		if errors.As(err, &rejected) {
			writeError(w, http.StatusInternalServerError, "registry rejected request")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

type uploadResponse struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
	Location    string `json:"location"`
	Category    string `json:"category"`
}

type downloadResponse struct {
	URL         string `json:"url"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

type shareRequest struct {
	AccessKey    string `json:"access_key"`
	Password     string `json:"password"`
	ExpiresIn    int    `json:"expires_in"` // hours
	MaxDownloads int    `json:"max_downloads"`
}

type shareResponse struct {
	ShareURL  string `json:"share_url"`
	AccessID  string `json:"access_id"`
	ExpiresAt string `json:"expires_at,omitempty"`
	Protected bool   `json:"protected"`
}

type shareAccessRequest struct {
	AccessKey string `json:"access_key"`
	Password  string `json:"password"`
}

type shareAccessResponse struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	URL         string `json:"url"`
}

type qrResponse struct {
	QRCode    string `json:"qr_code"`
	ShareLink string `json:"share_link"`
}

type healthResponse struct {
	Status         string `json:"status"`
	BlobStatus     string `json:"blob_status"`
	RegistryStatus string `json:"registry_status"`
}

type blobConfigRequest struct {
	Endpoint  string `json:"endpoint"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	Bucket    string `json:"bucket"`
	Secure    bool   `json:"secure"`
}
