// Package docconv turns uploaded clinical documents into plain text.
package docconv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"strings"
	"time"
	"unicode/utf8"
)

// ErrUnsupportedType is returned for file extensions the service cannot read.
var ErrUnsupportedType = errors.New("docconv: only .txt, .text, .md, and .pdf files are supported")

// ErrPDFUnavailable is returned for PDF uploads when no converter service is
// configured.
var ErrPDFUnavailable = errors.New("docconv: PDF support not available, no converter configured")

// Converter extracts plain text from an uploaded document.
type Converter interface {
	// Convert reads the document and returns its text content. filename is
	// used only for type detection.
	Convert(ctx context.Context, filename string, r io.Reader) (string, error)
}

// Supported reports whether the filename has a readable extension.
func Supported(filename string) bool {
	switch strings.ToLower(path.Ext(filename)) {
	case ".txt", ".text", ".md", ".pdf":
		return true
	}
	return false
}

// IsPDF reports whether the filename names a PDF document.
func IsPDF(filename string) bool {
	return strings.ToLower(path.Ext(filename)) == ".pdf"
}

// Service routes documents to the right reader: plain text locally, PDFs to
// the optional remote converter.
type Service struct {
	pdf Converter // nil when no converter service is configured
}

// NewService creates a conversion service. converterURL may be empty, which
// disables PDF support.
func NewService(converterURL string) *Service {
	s := &Service{}
	if converterURL != "" {
		s.pdf = NewRemoteConverter(converterURL)
	}
	return s
}

func (s *Service) Convert(ctx context.Context, filename string, r io.Reader) (string, error) {
	if !Supported(filename) {
		return "", ErrUnsupportedType
	}

	if IsPDF(filename) {
		if s.pdf == nil {
			return "", ErrPDFUnavailable
		}
		return s.pdf.Convert(ctx, filename, r)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if !utf8.Valid(data) {
		return "", errors.New("docconv: file is not valid UTF-8 text")
	}
	return string(data), nil
}

// ConvertUpload opens a multipart file header and converts it.
func (s *Service) ConvertUpload(ctx context.Context, fh *multipart.FileHeader) (string, error) {
	f, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()
	return s.Convert(ctx, fh.Filename, f)
}

// RemoteConverter sends PDFs to an external text-extraction service over
// HTTP and reads back the extracted text.
type RemoteConverter struct {
	baseURL string
	client  *http.Client
}

func NewRemoteConverter(baseURL string) *RemoteConverter {
	return &RemoteConverter{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 2 * time.Minute},
	}
}

func (r *RemoteConverter) Convert(ctx context.Context, filename string, src io.Reader) (string, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("build conversion request: %w", err)
	}
	if _, err := io.Copy(part, src); err != nil {
		return "", fmt.Errorf("copy upload: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize conversion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/convert", &body)
	if err != nil {
		return "", fmt.Errorf("build conversion request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call converter: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("converter returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	text, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read converter response: %w", err)
	}
	return string(text), nil
}
