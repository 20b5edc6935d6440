package apiclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
)

// File is one file part of a multipart upload.
type File struct {
	Field    string
	Filename string
	Content  io.Reader
}

// Upload POSTs a multipart/form-data body built from fields and files. The
// body is buffered so the request can be replayed after a token refresh.
func (c *Client) Upload(ctx context.Context, path string, fields map[string]string, files ...File) (*Response, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := w.WriteField(k, fields[k]); err != nil {
			return nil, fmt.Errorf("[Client Upload] field %s: %w", k, err)
		}
	}

	for _, f := range files {
		part, err := w.CreateFormFile(f.Field, f.Filename)
		if err != nil {
			return nil, fmt.Errorf("[Client Upload] file %s: %w", f.Field, err)
		}
		if _, err := io.Copy(part, f.Content); err != nil {
			return nil, fmt.Errorf("[Client Upload] file %s: %w", f.Field, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("[Client Upload] %w", err)
	}

	return c.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   path,
		Body:   buf.Bytes(),
		Header: http.Header{"Content-Type": []string{w.FormDataContentType()}},
	})
}
