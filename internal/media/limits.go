// Package media bounds binary payload sizes.
package media

import (
	"errors"
	"fmt"
	"io"
)

// MaxImageBytes is the max accepted size for a downloaded image.
const MaxImageBytes int64 = 20 * 1024 * 1024

// ErrAssetTooLarge indicates the payload exceeds the configured max size.
var ErrAssetTooLarge = errors.New("media asset too large")

// ReadAllWithLimit reads from reader and rejects payloads larger than maxBytes.
func ReadAllWithLimit(reader io.Reader, maxBytes int64) ([]byte, error) {
	if reader == nil {
		return nil, fmt.Errorf("reader is required")
	}
	if maxBytes <= 0 {
		return nil, fmt.Errorf("max bytes must be greater than 0")
	}
	limited := &io.LimitedReader{
		R: reader,
		N: maxBytes + 1,
	}
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: max %d bytes", ErrAssetTooLarge, maxBytes)
	}
	return data, nil
}
