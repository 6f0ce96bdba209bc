package post

import (
	"testing"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Hello World", "hello-world"},
		{"  My Post  ", "my-post"},
		{"Crème Brûlée", "creme-brulee"},
		{"Go 1.24 -- what's new?", "go-1-24-what-s-new"},
		{"already-a-slug", "already-a-slug"},
		{"ﬁle names", "file-names"},
		{"!!!", ""},
		{"日本語", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Slugify(tt.in))
		})
	}
}

func TestBaseSlugFallsBack(t *testing.T) {
	assert.Equal(t, "post", BaseSlug("???"))
	assert.Equal(t, "hello", BaseSlug("Hello"))
}

func TestUniqueSlug(t *testing.T) {
	taken := mapset.NewThreadUnsafeSet[string]()
	var got []string
	for i := 0; i < 4; i++ {
		s := UniqueSlug("my-post", taken)
		taken.Add(s)
		got = append(got, s)
	}
	assert.Equal(t, []string{"my-post", "my-post-1", "my-post-2", "my-post-3"}, got)
}

func TestUniqueSlugFillsGaps(t *testing.T) {
	taken := mapset.NewThreadUnsafeSet("my-post", "my-post-2")
	assert.Equal(t, "my-post-1", UniqueSlug("my-post", taken))
}
