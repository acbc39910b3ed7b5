package downloader

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/ilmfmt/ilmc/internal/logger"
)

// Checkpoints can be large; the timeout bounds the whole transfer.
var client = &http.Client{Timeout: 30 * time.Minute}

func Download(url, out string) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http error: %s", resp.Status)
	}
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	defer f.Close()
	n, err := io.Copy(f, resp.Body)
	if err != nil {
		return err
	}
	logger.Log.Info("downloaded", "url", url, "bytes", n, "out", out)
	return nil
}
