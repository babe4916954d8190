package gateway

import (
	"bytes"
	"fmt"
	"time"

	"github.com/klauspost/compress/zip"
)

// ZipBootstrap packages a provided.al2023 Lambda binary as the zip the
// support template's LambdaCodeKey points at: a single executable file
// named bootstrap.
func ZipBootstrap(binary []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	hdr := &zip.FileHeader{Name: "bootstrap", Method: zip.Deflate, Modified: time.Now()}
	hdr.SetMode(0o755)
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return nil, fmt.Errorf("zipping bootstrap: %w", err)
	}
	if _, err := w.Write(binary); err != nil {
		return nil, fmt.Errorf("zipping bootstrap: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zipping bootstrap: %w", err)
	}
	return buf.Bytes(), nil
}
