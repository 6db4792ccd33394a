package build

import (
	"github.com/stretchr/testify/assert"
	"testing"
)

func TestInfoString(t *testing.T) {
	info := &Info{
		Version:    "v0.3.0",
		GoVersion:  "go1.25.5",
		CommitHash: "0123456789abcdef0123",
		Modified:   true,
	}
	assert.Equal(t, "v0.3.0 (0123456789ab+dirty, go1.25.5)", info.String())

	info = &Info{Version: "dev"}
	assert.Equal(t, "dev (unknown, )", info.String())
}

func TestGetBuildInfoCarriesVersion(t *testing.T) {
	assert.Equal(t, Version, GetBuildInfo().Version)
}
