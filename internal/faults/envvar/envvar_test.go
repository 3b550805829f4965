package envvar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_AcceptsMissingFailure(t *testing.T) {
	typed, err := Module{}.Validate(map[string]any{
		"env_var_name":   "EXTERNAL_API_KEY",
		"failure_type":   "missing",
		"env_file_path":  "/srv/target/.env",
		"container_name": "target-api",
	})
	require.NoError(t, err)

	p := typed.(Params)
	assert.Equal(t, FailureMissing, p.FailureType)
	assert.Equal(t, "envfile:/srv/target/.env", p.ResourceKey())
}

func TestValidate_RejectsUnknownFailureType(t *testing.T) {
	_, err := Module{}.Validate(map[string]any{
		"env_var_name":   "EXTERNAL_API_KEY",
		"failure_type":   "bogus",
		"env_file_path":  "/srv/target/.env",
		"container_name": "target-api",
	})
	assert.Error(t, err)
}

func TestValidate_RequiresContainerName(t *testing.T) {
	_, err := Module{}.Validate(map[string]any{
		"env_var_name":  "EXTERNAL_API_KEY",
		"failure_type":  "wrong",
		"env_file_path": "/srv/target/.env",
	})
	assert.Error(t, err)
}

func TestCorrupt_MissingRemovesLine(t *testing.T) {
	data := []byte("FOO=bar\nEXTERNAL_API_KEY=secret\nBAZ=qux\n")
	rewritten, hadVar := corrupt(data, "EXTERNAL_API_KEY", FailureMissing)
	assert.True(t, hadVar)
	assert.NotContains(t, string(rewritten), "EXTERNAL_API_KEY")
	assert.Contains(t, string(rewritten), "FOO=bar")
	assert.Contains(t, string(rewritten), "BAZ=qux")
}

func TestCorrupt_WrongReplacesValue(t *testing.T) {
	data := []byte("EXTERNAL_API_KEY=secret\n")
	rewritten, hadVar := corrupt(data, "EXTERNAL_API_KEY", FailureWrong)
	assert.True(t, hadVar)
	assert.Contains(t, string(rewritten), "EXTERNAL_API_KEY="+wrongValueSentinel)
}

func TestCorrupt_VarAbsentReportsNotFound(t *testing.T) {
	data := []byte("FOO=bar\n")
	_, hadVar := corrupt(data, "EXTERNAL_API_KEY", FailureMissing)
	assert.False(t, hadVar)
}
