package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
	"strings"
)

type UploadResult struct {
	FileUrl     string `json:"file_url"`
	ContentType string `json:"-"`
}

// IsImage reports whether the uploaded file is an image.
func (r UploadResult) IsImage() bool {
	return strings.HasPrefix(r.ContentType, "image/")
}

// Upload posts r as the multipart field "file". The content type is
// derived from the file name extension.
func (c *Client) Upload(ctx context.Context, filename string, r io.Reader) (*UploadResult, error) {
	if filename == "" {
		return nil, NewBadRequestError(fmt.Errorf("missing file name"))
	}

	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(filename)))
	h.Set("Content-Type", contentType)

	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("create form part: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("copy upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close form: %w", err)
	}

	var res UploadResult
	if err := c.do(ctx, http.MethodPost, "/uploads/", &buf, mw.FormDataContentType(), &res); err != nil {
		return nil, err
	}
	res.ContentType = contentType

	return &res, nil
}
