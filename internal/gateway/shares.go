package gateway

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	qrcode "github.com/skip2/go-qrcode"

	"drivegate/internal/auth"
	"drivegate/internal/share"
)

// ShareOptions are the caller-supplied bounds for a new grant.
type ShareOptions struct {
	AccessKey    string
	Password     string
	ExpiresIn    time.Duration
	MaxDownloads int
}

// CreateShare issues a grant for the file under id, owned by ident. The
// grant snapshots the file's metadata so later anonymous accesses need no
// registry credentials.
func (s *Server) CreateShare(ctx context.Context, token string, ident auth.Identity, id string, opts ShareOptions) (*share.Grant, error) {
	rec, err := s.cfg.Registry.GetFile(ctx, token, id)
	if err != nil {
		return nil, fmt.Errorf("resolve record: %w", err)
	}
	if !strings.HasPrefix(rec.S3Key, ownerPrefix(ident.Owner())) {
		// The registry found the record, but it belongs to someone else.
		return nil, share.ErrNotFound
	}

	expiresIn := opts.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = s.cfg.ShareTTL
	}

	filename := rec.Filename
	if filename == "" {
		filename = keyBasename(rec.S3Key)
	}

	g := share.New(id, ident.Owner(), rec.S3Key, filename, rec.ContentType, rec.Size, expiresIn, opts.MaxDownloads)
	if opts.AccessKey != "" {
		g.SetAccessKey(opts.AccessKey)
	}
	if opts.Password != "" {
		if err := g.SetPassword(opts.Password); err != nil {
			return nil, err
		}
	}

	if err := s.cfg.Grants.Create(g); err != nil {
		return nil, fmt.Errorf("persist grant: %w", err)
	}
	return g, nil
}

// ShareURL builds the public link for a grant.
func (s *Server) ShareURL(g *share.Grant) string {
	return strings.TrimSuffix(s.cfg.BaseURL, "/") + "/s/" + g.AccessID
}

// ShareQRCode issues a grant for the file and renders its share link as a
// base64-encoded PNG QR code.
func (s *Server) ShareQRCode(ctx context.Context, token string, ident auth.Identity, id string) (qrBase64, shareURL string, err error) {
	g, err := s.CreateShare(ctx, token, ident, id, ShareOptions{})
	if err != nil {
		return "", "", err
	}

	shareURL = s.ShareURL(g)
	png, err := qrcode.Encode(shareURL, qrcode.Medium, 256)
	if err != nil {
		return "", "", fmt.Errorf("render qr code: %w", err)
	}
	return base64.StdEncoding.EncodeToString(png), shareURL, nil
}
