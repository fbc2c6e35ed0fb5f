package capture

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"golang.org/x/oauth2"
)

// Uploader hands a finished artifact to external storage.
type Uploader interface {
	Upload(ctx context.Context, a *Artifact) error
}

// HTTPUploader POSTs the artifact body to URL with a bearer token.
type HTTPUploader struct {
	URL    string
	client *http.Client
}

func NewHTTPUploader(ctx context.Context, url, token string) *HTTPUploader {
	client := http.DefaultClient
	if token != "" {
		client = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}))
	}
	return &HTTPUploader{URL: url, client: client}
}

func (u *HTTPUploader) Upload(ctx context.Context, a *Artifact) error {
	f, err := os.Open(a.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.URL, f)
	if err != nil {
		return err
	}
	req.ContentLength = a.Size
	req.Header.Set("Content-Type", a.Format.MimeType)
	req.Header.Set("X-Filename", a.Name)

	resp, err := u.client.Do(req)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("upload: status %d: %s", resp.StatusCode, body)
	}
	return nil
}
