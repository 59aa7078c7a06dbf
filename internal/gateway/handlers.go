package gateway

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"drivegate/internal/auth"
	"drivegate/internal/blob"
)

// maxUploadMemory bounds how much of a multipart upload is buffered in
// memory before spilling to disk.
const maxUploadMemory = 32 << 20

// authenticate extracts the caller's token and identity, writing a 401 and
// returning false when either is missing or malformed.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (string, auth.Identity, bool) {
	token, err := auth.BearerToken(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "authorization header required")
		return "", auth.Identity{}, false
	}

	ident, err := auth.IdentityFromToken(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return "", auth.Identity{}, false
	}
	return token, ident, true
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	token, ident, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, "expected multipart form with a file field")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	result, err := s.Upload(r.Context(), token, ident, header.Filename, file, header.Size, contentType)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		ID:          result.ID,
		Filename:    result.Filename,
		Size:        result.Size,
		ContentType: result.ContentType,
		Location:    result.Location,
		Category:    result.Category,
	})
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	token, ident, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	summaries, err := s.ListFiles(r.Context(), token, ident, r.URL.Query().Get("category"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	token, _, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	info, err := s.Download(r.Context(), token, r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, downloadResponse{
		URL:         info.URL,
		Filename:    info.Filename,
		ContentType: info.ContentType,
		Size:        info.Size,
	})
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	token, _, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	if err := s.DeleteFile(r.Context(), token, r.PathValue("id")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handleCreateShare(w http.ResponseWriter, r *http.Request) {
	token, ident, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	var req shareRequest
	if r.Body != nil {
		// An empty body means an unprotected share with defaults.
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
			writeError(w, http.StatusBadRequest, "malformed share request")
			return
		}
	}

	g, err := s.CreateShare(r.Context(), token, ident, r.PathValue("id"), ShareOptions{
		AccessKey:    req.AccessKey,
		Password:     req.Password,
		ExpiresIn:    time.Duration(req.ExpiresIn) * time.Hour,
		MaxDownloads: req.MaxDownloads,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := shareResponse{
		ShareURL:  s.ShareURL(g),
		AccessID:  g.AccessID,
		Protected: g.Protected(),
	}
	if g.ExpiresAt != nil {
		resp.ExpiresAt = g.ExpiresAt.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleShareQRCode(w http.ResponseWriter, r *http.Request) {
	token, ident, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	qr, link, err := s.ShareQRCode(r.Context(), token, ident, r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, qrResponse{QRCode: qr, ShareLink: link})
}

func (s *Server) handleAccessShare(w http.ResponseWriter, r *http.Request) {
	var req shareAccessRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
			writeError(w, http.StatusBadRequest, "malformed access request")
			return
		}
	}

	g, info, err := s.ShareAccess(r.Context(), r.PathValue("accessID"), req.AccessKey, req.Password)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, shareAccessResponse{
		Filename:    g.Filename,
		ContentType: info.ContentType,
		Size:        info.Size,
		URL:         info.URL,
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	resp, err := s.cfg.Registry.Signup(r.Context(), body)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	// Provision the account's category folders in the blob store when the
	// registry handed back a token. Best-effort; a failure never fails the
	// signup itself.
	if resp.Status >= 200 && resp.Status <= 299 {
		if token := extractToken(resp.Body); token != "" {
			s.provisionOwnerFolders(r.Context(), token)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	resp, err := s.cfg.Registry.Login(r.Context(), body)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
}

// extractToken pulls the issued token out of a registry auth response.
func extractToken(body []byte) string {
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return ""
	}
	return resp.Token
}

// provisionOwnerFolders creates the empty category folder markers for a new
// account so browsing clients see the expected layout immediately.
func (s *Server) provisionOwnerFolders(ctx context.Context, token string) {
	ident, err := auth.IdentityFromToken(token)
	if err != nil {
		slog.Warn("cannot provision folders, token has no identity", "err", err)
		return
	}

	prefix := ownerPrefix(ident.Owner())
	for _, category := range []string{CategoryDocuments, CategoryImages, CategoryVideos, CategoryAudio, CategoryOthers} {
		key := prefix + category + "/"
		err := s.withBlob(func(store blob.Store) error {
			return store.Put(ctx, key, strings.NewReader(""), 0, "application/x-directory")
		})
		if err != nil {
			slog.Warn("create folder marker failed", "key", key, "err", err)
			return
		}
	}
	slog.Info("provisioned folder structure", "owner", ident.Owner())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := healthResponse{Status: "running", BlobStatus: "connected", RegistryStatus: "connected"}

	err := s.withBlob(func(store blob.Store) error {
		return store.Ping(ctx)
	})
	if err != nil {
		resp.BlobStatus = "disconnected"
	}

	if err := s.cfg.Registry.Ping(ctx); err != nil {
		resp.RegistryStatus = "disconnected"
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleBlobConfig swaps the object-storage backend at runtime, for
// credential rotation. The new backend must answer a ping before the
// in-flight handle is replaced.
func (s *Server) handleBlobConfig(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := s.authenticate(w, r); !ok {
		return
	}

	var req blobConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed configuration")
		return
	}

	store, err := blob.NewMinioStore(blob.MinioConfig{
		Endpoint:  req.Endpoint,
		AccessKey: req.AccessKey,
		SecretKey: req.SecretKey,
		Bucket:    req.Bucket,
		Secure:    req.Secure,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid storage configuration")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		writeError(w, http.StatusBadRequest, "storage backend not reachable with given configuration")
		return
	}

	s.SetBlobStore(store)
	slog.Info("blob backend reconfigured", "endpoint", req.Endpoint, "bucket", req.Bucket)
	writeJSON(w, http.StatusOK, map[string]bool{"configured": true})
}
