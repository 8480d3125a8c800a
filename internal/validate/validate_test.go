package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestK8sName(t *testing.T) {
	cases := []struct {
		name string
		ok   bool
	}{
		{"intervalai", true},
		{"my-app-1", true},
		{"a", true},
		{"", false},
		{"-leading-hyphen", false},
		{"trailing-hyphen-", false},
		{"Upper", false},
		{"under_score", false},
		{"foo; rm -rf /", false},
	}
	for _, c := range cases {
		assert.Equalf(t, c.ok, K8sName(c.name), "K8sName(%q)", c.name)
	}
}

func TestBranch(t *testing.T) {
	assert.True(t, Branch("main"))
	assert.True(t, Branch("release/1.2.3"))
	assert.True(t, Branch("feature/foo_bar-baz"))
	assert.False(t, Branch(""))
	assert.False(t, Branch("../etc/passwd"))
	assert.False(t, Branch("has space"))
	assert.False(t, Branch("$(rm -rf /)"))
}

func TestRelPath(t *testing.T) {
	assert.True(t, RelPath("helm-charts/intervalai"))
	assert.True(t, RelPath("values.yaml"))
	assert.False(t, RelPath(""))
	assert.False(t, RelPath("/etc/passwd"))
	assert.False(t, RelPath("../../etc/passwd"))
	assert.False(t, RelPath("charts/../../../etc/passwd"))
}

func TestDuration(t *testing.T) {
	assert.True(t, Duration("60s"))
	assert.True(t, Duration("5m"))
	assert.True(t, Duration("1h"))
	assert.False(t, Duration(""))
	assert.False(t, Duration("5"))
	assert.False(t, Duration("5d"))
	assert.False(t, Duration("-5s"))
}

func TestValidate(t *testing.T) {
	err := Validate("foo; rm -rf /", KindK8sName, "applications[0].name")
	require.Error(t, err)
	var verr *Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "applications[0].name", verr.Field)
	assert.Equal(t, string(KindK8sName), verr.Rule)

	require.NoError(t, Validate("default", KindK8sName, "applications[0].namespace"))
}

func TestValidateUnknownKind(t *testing.T) {
	err := Validate("x", Kind("bogus"), "field")
	require.Error(t, err)
}
