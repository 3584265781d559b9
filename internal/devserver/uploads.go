package devserver

import (
	"bytes"
	"crypto/rand"
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"
)

const maxUploadSize = 10 << 20

type UploadResponse struct {
	FileUrl string `json:"file_url"`
}

type upload struct {
	contentType string
	data        []byte
	createdAt   time.Time
}

type uploadStore struct {
	mu    sync.RWMutex
	files map[string]upload
}

func newUploadStore() *uploadStore {
	return &uploadStore{files: make(map[string]upload)}
}

func (u *uploadStore) put(name, contentType string, data []byte) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.files[name] = upload{contentType: contentType, data: data, createdAt: time.Now()}
}

func (u *uploadStore) get(name string) (upload, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()

	f, ok := u.files[name]
	return f, ok
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

	file, header, err := r.FormFile("file")
	if err != nil {
		var errResp *ApiError
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			errResp = NewRequestTooLargeError()
		} else {
			errResp = NewBadRequestError().WithMessage("missing file")
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	defer file.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, file); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		if byExt := mime.TypeByExtension(ext); byExt != "" {
			contentType = byExt
		} else {
			contentType = http.DetectContentType(buf.Bytes())
		}
	}

	name := ulid.MustNew(ulid.Now(), rand.Reader).String() + ext
	s.uploads.put(name, contentType, buf.Bytes())

	s.writeJson(w, http.StatusOK, UploadResponse{FileUrl: "/uploads/" + name})
}

func (s *Server) serveUpload(w http.ResponseWriter, r *http.Request) {
	f, ok := s.uploads.get(chi.URLParam(r, "name"))
	if !ok {
		errResp := NewNotFoundError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.Header().Set("Content-Type", f.contentType)
	http.ServeContent(w, r, chi.URLParam(r, "name"), f.createdAt, bytes.NewReader(f.data))
}
