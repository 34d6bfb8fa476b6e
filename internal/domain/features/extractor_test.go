package features

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_Deterministic(t *testing.T) {
	url := "https://secure-login.example.xyz/verify?user=1&token=abc123"

	first := Extract(url)
	second := Extract(url)

	assert.Equal(t, first, second, "same input must yield the same vector")
}

func TestExtract_SchemaComplete(t *testing.T) {
	v := Extract("https://example.com")

	require.Len(t, v, len(Names))
	for _, name := range Names {
		_, ok := v[name]
		assert.True(t, ok, "missing feature %s", name)
	}
	assert.Len(t, v.Ordered(), len(Names))
}

func TestExtract_MalformedInputDefaults(t *testing.T) {
	v := Extract("exa mple.com")

	assert.Equal(t, 1.0, v["has_https"], "malformed input defaults to the https assumption")
	assert.Equal(t, 0.0, v["url_length"])
	assert.Equal(t, 0.0, v["kw_login"])
}

func TestExtract_Features(t *testing.T) {
	v := Extract("http://sub.example.com/login?a=1&b=2")

	assert.Equal(t, 0.0, v["has_https"])
	assert.Equal(t, 1.0, v["kw_login"])
	assert.Equal(t, 0.0, v["kw_payment"])
	assert.InDelta(t, math.Log(1+7), v["domain_length"], 1e-9) // "example"
	assert.InDelta(t, math.Log(1+3), v["subdomain_length"], 1e-9)
	assert.InDelta(t, math.Log(1+2), v["num_equals"], 1e-9)
}

func TestExtract_SchemelessGetsHTTPS(t *testing.T) {
	v := Extract("example.com/account")

	assert.Equal(t, 1.0, v["has_https"])
	assert.Equal(t, 1.0, v["kw_account"])
}

func TestExtract_CapsPathologicalInput(t *testing.T) {
	long := "https://example.com/" + strings.Repeat("a", 5000)

	v := Extract(long)

	assert.InDelta(t, math.Log(1+2000), v["url_length"], 1e-9,
		"length features are capped before log compression")
}
