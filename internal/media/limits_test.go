package media

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadAllWithLimit_WithinLimit(t *testing.T) {
	got, err := ReadAllWithLimit(bytes.NewReader([]byte("png")), 16)
	assert.NoError(t, err)
	assert.Equal(t, []byte("png"), got)
}

func TestReadAllWithLimit_ExactLimit(t *testing.T) {
	got, err := ReadAllWithLimit(bytes.NewReader([]byte("12345")), 5)
	assert.NoError(t, err)
	assert.Len(t, got, 5)
}

func TestReadAllWithLimit_OverLimit(t *testing.T) {
	payload := strings.Repeat("x", 32)
	_, err := ReadAllWithLimit(bytes.NewReader([]byte(payload)), 16)
	assert.ErrorIs(t, err, ErrAssetTooLarge)
}

func TestReadAllWithLimit_NilReader(t *testing.T) {
	_, err := ReadAllWithLimit(nil, 10)
	assert.Error(t, err)
}
