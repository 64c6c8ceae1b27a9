package health

import (
	"testing"

	"github.com/neperienx/bookpipeline/internal/pkg/nativelog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeLogFilename(t *testing.T) {
	name, ok := sanitizeLogFilename("stdout_8-25-26.log")
	require.True(t, ok)
	assert.Equal(t, "stdout_8-25-26.log", name)

	// Path segments collapse to the base name.
	name, ok = sanitizeLogFilename("../../etc/stdout_8-25-26.log")
	require.True(t, ok)
	assert.Equal(t, "stdout_8-25-26.log", name)

	_, ok = sanitizeLogFilename("   ")
	assert.False(t, ok)

	name, ok = sanitizeLogFilename("logs/")
	require.True(t, ok)
	assert.Equal(t, "logs", name)
}

func TestResolveLogDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(nativelog.EnvLogDir, dir)

	resolved, err := resolveLogDir("native")
	require.NoError(t, err)
	assert.Equal(t, dir, resolved)

	_, err = resolveLogDir("syslog")
	assert.Error(t, err)
}

func TestFormatByteSize(t *testing.T) {
	assert.Equal(t, "512 B", formatByteSize(512))
	assert.Equal(t, "2.00 KB", formatByteSize(2048))
	assert.Equal(t, "1.50 MB", formatByteSize(3<<19))
}
