package blocklist

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBlocklistExactMatch(t *testing.T) {
	t.Parallel()

	list := New([]string{"yelp.com", "Facebook.COM"})

	assert.True(t, list.IsBlocked("yelp.com"))
	assert.True(t, list.IsBlocked("FACEBOOK.com"))
	assert.False(t, list.IsBlocked("www.yelp.com"))
	assert.False(t, list.IsBlocked("notyelp.com"))
}

func TestBlocklistSuffixMatch(t *testing.T) {
	t.Parallel()

	list := New([]string{"*.yelp.com", ".gov.example"})

	assert.True(t, list.IsBlocked("www.yelp.com"))
	assert.True(t, list.IsBlocked("deep.sub.yelp.com"))
	assert.True(t, list.IsBlocked("yelp.com"), "suffix pattern covers the bare domain")
	assert.True(t, list.IsBlocked("portal.gov.example"))
	assert.False(t, list.IsBlocked("notyelp.com"))
}

func TestBlocklistEmptyAndNil(t *testing.T) {
	t.Parallel()

	assert.Nil(t, New(nil))
	assert.Nil(t, New([]string{"", "  ", "*."}))

	var list *Blocklist
	assert.False(t, list.IsBlocked("anything.example"))
}

func TestBlocklistHostNormalization(t *testing.T) {
	t.Parallel()

	list := New([]string{"  Tripadvisor.com  "})

	assert.True(t, list.IsBlocked(" tripadvisor.com "))
	assert.False(t, list.IsBlocked(""))
}
