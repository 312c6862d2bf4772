package logo

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/snapspend-backend/pkg/config"
)

func TestDomain(t *testing.T) {
	cases := map[string]string{
		"Trader Joe's":             "traderjoes.com",
		"  WALMART ":               "walmart.com",
		"target.com":               "target.com",
		"https://www.costco.com/x": "costco.com",
		"Café 7":                   "caf7.com",
		"!!!":                      "",
		"":                         "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Domain(in), "input %q", in)
	}
}

func TestBuilderURL(t *testing.T) {
	b := NewBuilder(config.LogoConfig{BaseURL: "https://img.logo.dev/", Token: "pk_test", Size: 64})

	raw := b.URL("Whole Foods")
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "img.logo.dev", u.Host)
	assert.Equal(t, "/wholefoods.com", u.Path)
	assert.Equal(t, "pk_test", u.Query().Get("token"))
	assert.Equal(t, "64", u.Query().Get("size"))
	assert.Equal(t, "png", u.Query().Get("format"))
}

func TestBuilderWithoutToken(t *testing.T) {
	b := NewBuilder(config.LogoConfig{BaseURL: "https://img.logo.dev"})
	assert.Empty(t, b.URL("Target"))

	var nilBuilder *Builder
	assert.Empty(t, nilBuilder.URL("Target"))
}
