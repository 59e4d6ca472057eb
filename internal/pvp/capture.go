package pvp

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// Capturer saves response bodies that failed to parse so they can be inspected
// offline. Files are named after the capture time in epoch milliseconds.
type Capturer struct {
	dir string
	now func() time.Time

	mu sync.Mutex
}

// NewCapturer creates a capturer writing into dir
func NewCapturer(dir string) *Capturer {
	return &Capturer{dir: dir, now: time.Now}
}

// Dir returns the capture directory
func (c *Capturer) Dir() string {
	return c.dir
}

// Capture writes body to <dir>/<epochMillis>.html and returns the path
func (c *Capturer) Capture(body []byte) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create capture directory: %w", err)
	}

	stamp := strconv.FormatInt(c.now().UnixMilli(), 10)
	for i := 0; ; i++ {
		name := stamp + ".html"
		if i > 0 {
			name = stamp + "-" + strconv.Itoa(i) + ".html"
		}
		path := filepath.Join(c.dir, name)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to create capture file: %w", err)
		}
		if _, err := f.Write(body); err != nil {
			f.Close()
			return "", fmt.Errorf("failed to write capture file: %w", err)
		}
		return path, f.Close()
	}
}
