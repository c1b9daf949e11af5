package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	moderr "github.com/lizzyg/llmbridge/errors"
	"github.com/lizzyg/llmbridge/internal/providers/transport"
)

const (
	FileStateActive     = "ACTIVE"
	FileStateProcessing = "PROCESSING"
	FileStateFailed     = "FAILED"

	uploadURLHeader = "X-Goog-Upload-Url"
)

// File is an uploaded file resource. Files expire after 48 hours.
type File struct {
	Name           string  `json:"name"`
	DisplayName    string  `json:"displayName,omitempty"`
	MimeType       string  `json:"mimeType,omitempty"`
	SizeBytes      int64   `json:"sizeBytes,omitempty,string"`
	CreateTime     string  `json:"createTime,omitempty"`
	UpdateTime     string  `json:"updateTime,omitempty"`
	ExpirationTime string  `json:"expirationTime,omitempty"`
	SHA256Hash     string  `json:"sha256Hash,omitempty"`
	URI            string  `json:"uri,omitempty"`
	State          string  `json:"state,omitempty"`
	Error          *Status `json:"error,omitempty"`
}

func (f *File) IsActive() bool     { return f.State == FileStateActive }
func (f *File) IsProcessing() bool { return f.State == FileStateProcessing }
func (f *File) IsFailed() bool     { return f.State == FileStateFailed }

type FileList struct {
	Files         []File `json:"files"`
	NextPageToken string `json:"nextPageToken,omitempty"`
}

type fileEnvelope struct {
	File *File `json:"file"`
}

// Files manages uploads through the Files API.
type Files struct {
	svc *Service
}

func NewFiles(svc *Service) *Files { return &Files{svc: svc} }

// Files returns a file manager sharing this client's service.
func (c *Client) Files() *Files { return NewFiles(c.svc) }

// UploadPath uploads a local file. The MIME type is detected from its
// content.
func (f *Files) UploadPath(ctx context.Context, path, displayName string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", moderr.ErrUploadFailed, err)
	}
	mt := sniffMime(data)
	if displayName == "" {
		displayName = filepath.Base(path)
	}
	return f.Upload(ctx, data, mt, displayName)
}

// Upload runs a resumable upload: a start request returns the upload URL,
// then the bytes are sent with "upload, finalize".
func (f *Files) Upload(ctx context.Context, data []byte, mimeType, displayName string) (*File, error) {
	uploadURL, err := f.startUpload(ctx, len(data), mimeType, displayName)
	if err != nil {
		return nil, err
	}
	_, body, err := f.svc.client.Do(ctx, "uploadFile", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-Goog-Upload-Offset", "0")
		req.Header.Set("X-Goog-Upload-Command", "upload, finalize")
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", moderr.ErrUploadFailed, err)
	}
	var env fileEnvelope
	if err := json.Unmarshal(body, &env); err != nil || env.File == nil {
		return nil, fmt.Errorf("%w: unexpected upload response", moderr.ErrUploadFailed)
	}
	return env.File, nil
}

func (f *Files) startUpload(ctx context.Context, size int, mimeType, displayName string) (string, error) {
	meta, err := json.Marshal(map[string]any{"file": map[string]string{"display_name": displayName}})
	if err != nil {
		return "", err
	}
	newReq := transport.JSONRequest(http.MethodPost, f.svc.prefixedURL("upload", "files"), meta)
	resp, _, err := f.svc.client.Do(ctx, "startUpload", func(ctx context.Context) (*http.Request, error) {
		req, err := newReq(ctx)
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-Goog-Upload-Protocol", "resumable")
		req.Header.Set("X-Goog-Upload-Command", "start")
		req.Header.Set("X-Goog-Upload-Header-Content-Length", strconv.Itoa(size))
		req.Header.Set("X-Goog-Upload-Header-Content-Type", mimeType)
		return req, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", moderr.ErrUploadFailed, err)
	}
	u := resp.Header.Get(uploadURLHeader)
	if u == "" {
		return "", fmt.Errorf("%w: upload URL not found in response headers", moderr.ErrUploadFailed)
	}
	return u, nil
}

// Get fetches metadata for name, e.g. "files/abc".
func (f *Files) Get(ctx context.Context, name string) (*File, error) {
	var out File
	if err := f.svc.client.DoJSON(ctx, "getFile", http.MethodGet, f.svc.url(name), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (f *Files) List(ctx context.Context, pageSize int, pageToken string) (*FileList, error) {
	q := url.Values{}
	if pageSize > 0 {
		q.Set("pageSize", strconv.Itoa(pageSize))
	}
	if pageToken != "" {
		q.Set("pageToken", pageToken)
	}
	u := f.svc.url("files")
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	var out FileList
	if err := f.svc.client.DoJSON(ctx, "listFiles", http.MethodGet, u, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (f *Files) Delete(ctx context.Context, name string) error {
	return f.svc.client.DoJSON(ctx, "deleteFile", http.MethodDelete, f.svc.url(name), nil, nil)
}
