package intake

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"blurclient/internal/domain"
)

// MaxBytes is the upload size ceiling.
const MaxBytes = 10 << 20 // 10 MiB

var supportedMIMEs = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpeg",
	"image/webp": "webp",
	"image/gif":  "gif",
}

var extensionMIMEs = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
	".gif":  "image/gif",
}

// Image is a validated upload, ready both for local rendering and for
// transmission to the processing service.
type Image struct {
	Name string
	MIME string
	Data []byte
}

// DataURL renders the image as a base64 data URI for immediate local
// preview, independent of any remote call.
func (img *Image) DataURL() string {
	return "data:" + img.MIME + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

// Accept validates name and content against the supported formats and the
// size ceiling. The content type is sniffed from the bytes; a recognized
// file extension also qualifies (GIF in particular may pass on extension
// alone). Violations return domain.ErrUnsupportedType or domain.ErrTooLarge
// and nothing else happens.
func Accept(name string, data []byte) (*Image, error) {
	mime, ok := detectMIME(name, data)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedType, name)
	}
	if len(data) > MaxBytes {
		return nil, fmt.Errorf("%w: %d bytes", domain.ErrTooLarge, len(data))
	}
	return &Image{Name: filepath.Base(name), MIME: mime, Data: data}, nil
}

// AcceptFile reads and validates the image at path. This is the file-picker
// entry point; piped input and clipboard items funnel through Accept and
// AcceptClipboard respectively.
func AcceptFile(path string) (*Image, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("intake: stat %s: %w", path, err)
	}
	// Reject before reading so an oversized file never lands in memory.
	if info.Size() > MaxBytes {
		return nil, fmt.Errorf("%w: %d bytes", domain.ErrTooLarge, info.Size())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("intake: read %s: %w", path, err)
	}
	return Accept(path, data)
}

// ClipboardItem is one entry from a clipboard paste.
type ClipboardItem struct {
	Name string
	MIME string
	Data []byte
}

// AcceptClipboard scans pasted items and validates the first image-typed
// entry. A paste with no image at all is an unsupported-type rejection.
func AcceptClipboard(items []ClipboardItem) (*Image, error) {
	for _, item := range items {
		if !strings.HasPrefix(item.MIME, "image") {
			continue
		}
		name := item.Name
		if name == "" {
			name = "clipboard"
		}
		return Accept(name, item.Data)
	}
	return nil, fmt.Errorf("%w: no image in clipboard", domain.ErrUnsupportedType)
}

func detectMIME(name string, data []byte) (string, bool) {
	sniffed := http.DetectContentType(data)
	if _, ok := supportedMIMEs[sniffed]; ok {
		return sniffed, true
	}
	if mime, ok := extensionMIMEs[strings.ToLower(filepath.Ext(name))]; ok {
		return mime, true
	}
	return "", false
}
