package logo

import (
	"net/url"
	"strconv"
	"strings"
	"unicode"

	"github.com/angelmondragon/snapspend-backend/pkg/config"
)

// Builder turns a store name or search term into a logo.dev image URL.
type Builder struct {
	baseURL string
	token   string
	size    int
}

func NewBuilder(cfg config.LogoConfig) *Builder {
	return &Builder{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		size:    cfg.Size,
	}
}

// URL returns the logo URL for term, or "" when no token is configured or the
// term has no usable characters.
func (b *Builder) URL(term string) string {
	if b == nil || b.token == "" || b.baseURL == "" {
		return ""
	}
	domain := Domain(term)
	if domain == "" {
		return ""
	}
	q := url.Values{}
	q.Set("token", b.token)
	if b.size > 0 {
		q.Set("size", strconv.Itoa(b.size))
	}
	q.Set("format", "png")
	return b.baseURL + "/" + url.PathEscape(domain) + "?" + q.Encode()
}

// Domain guesses a store's domain. Terms that already look like a domain are
// lower-cased; anything else is reduced to letters and digits plus ".com".
func Domain(term string) string {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return ""
	}
	term = strings.TrimPrefix(strings.TrimPrefix(term, "https://"), "http://")
	term = strings.TrimPrefix(term, "www.")
	if i := strings.IndexByte(term, '/'); i >= 0 {
		term = term[:i]
	}
	if strings.Contains(term, ".") && !strings.ContainsAny(term, " \t") {
		return term
	}

	var sb strings.Builder
	for _, r := range term {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			sb.WriteRune(r)
		}
	}
	if sb.Len() == 0 {
		return ""
	}
	return sb.String() + ".com"
}
