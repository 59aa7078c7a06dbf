package gateway

import "net/http"

// Handler returns the gateway's HTTP API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Auth proxying. The registry issues and verifies tokens; the gateway
	// only forwards.
	mux.HandleFunc("POST /auth/register", s.handleRegister)
	mux.HandleFunc("POST /auth/login", s.handleLogin)

	// File management.
	mux.HandleFunc("POST /files/upload", s.handleUpload)
	mux.HandleFunc("GET /files", s.handleListFiles)
	mux.HandleFunc("GET /files/{id}/download", s.handleDownload)
	mux.HandleFunc("DELETE /files/{id}", s.handleDeleteFile)

	// Sharing.
	mux.HandleFunc("POST /files/{id}/share", s.handleCreateShare)
	mux.HandleFunc("POST /files/{id}/qr", s.handleShareQRCode)
	mux.HandleFunc("POST /share/{accessID}", s.handleAccessShare)

	// Operations.
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /admin/blob-config", s.handleBlobConfig)

	return LogRequest(CORS(mux))
}
