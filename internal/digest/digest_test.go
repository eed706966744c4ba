package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifierMatches(t *testing.T) {
	data := []byte("hello registry")
	sum := sha256.Sum256(data)
	declared := "sha256:" + hex.EncodeToString(sum[:])

	v, err := New(declared)
	require.NoError(t, err)

	_, err = v.Write(data)
	require.NoError(t, err)

	assert.NoError(t, v.Verify())
}

func TestVerifierMismatch(t *testing.T) {
	v, err := New("sha256:" + hex.EncodeToString(make([]byte, 32)))
	require.NoError(t, err)

	_, _ = v.Write([]byte("anything"))

	err = v.Verify()
	require.Error(t, err)
}

func TestVerifierCaseInsensitiveHex(t *testing.T) {
	data := []byte("CaSe")
	sum := sha256.Sum256(data)
	upper := hex.EncodeToString(sum[:])
	for i := range upper {
		if upper[i] >= 'a' && upper[i] <= 'f' {
			upper = upper[:i] + string(upper[i]-32) + upper[i+1:]
		}
	}

	v, err := New("sha256:" + upper)
	require.NoError(t, err)
	_, _ = v.Write(data)
	assert.NoError(t, v.Verify())
}

func TestNewRejectsUnsupportedAlgorithm(t *testing.T) {
	_, err := New("md5:" + hex.EncodeToString(make([]byte, 16)))
	require.Error(t, err)
}

func TestSplitRejectsMalformed(t *testing.T) {
	cases := []string{"", "sha256", "sha256:", "sha256:zz"}
	for _, c := range cases {
		_, _, err := Split(c)
		assert.Error(t, err, c)
	}
}
