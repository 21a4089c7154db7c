// source/download.go
package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

// DownloadFile fetches url and stores the body at localSavePath, creating the
// directory when needed. The body goes to a temporary file that is renamed
// into place once complete.
func DownloadFile(ctx context.Context, client *http.Client, url, localSavePath string) error {
	body, err := get(ctx, client, url, "")
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", url, err)
	}
	defer body.Close()

	dir := filepath.Dir(localSavePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(localSavePath)+".*.part")
	if err != nil {
		return fmt.Errorf("failed to create local file in %s: %w", dir, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to copy downloaded content to %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), localSavePath)
}
