package post

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tooManyTags := make([]Tag, MaxTags+1)
	for i := range tooManyTags {
		tooManyTags[i] = Tag{Name: "t"}
	}

	tests := []struct {
		name   string
		def    Definition
		fields []string
	}{
		{
			name: "minimal",
			def:  Definition{Name: "Hello"},
		},
		{
			name: "full",
			def: Definition{
				Name:        "Hello",
				Description: "desc",
				Tags:        []Tag{{Name: "go", Category: "lang"}},
				Image:       &Image{Src: "/posts/1/cover.png"},
				Status:      StatusPublished,
			},
		},
		{
			name:   "missing name",
			def:    Definition{Name: "   "},
			fields: []string{"name"},
		},
		{
			name:   "long description",
			def:    Definition{Name: "x", Description: strings.Repeat("a", MaxDescriptionLen+1)},
			fields: []string{"description"},
		},
		{
			name:   "too many tags",
			def:    Definition{Name: "x", Tags: tooManyTags},
			fields: []string{"tags"},
		},
		{
			name: "bad tag fields",
			def: Definition{Name: "x", Tags: []Tag{
				{Name: ""},
				{Name: strings.Repeat("n", MaxTagNameLen+1), Category: strings.Repeat("c", MaxTagCategoryLen+1)},
			}},
			fields: []string{"tags[0].name", "tags[1].name", "tags[1].category"},
		},
		{
			name:   "unknown status",
			def:    Definition{Name: "x", Status: "deleted"},
			fields: []string{"status"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.def)
			if len(tt.fields) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid))

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			var got []string
			for _, f := range verr.Fields {
				got = append(got, f.Field)
			}
			assert.Equal(t, tt.fields, got)
		})
	}
}

func TestNewRowDefaults(t *testing.T) {
	row := NewRow(Definition{Name: "Hello", Image: &Image{Src: "/a.png", Alt: "a"}}, 7)
	assert.Equal(t, int64(7), row.UserID)
	assert.Equal(t, "en", row.Language)
	assert.Equal(t, StatusDraft, row.Status)
	assert.Equal(t, "[]", row.Links)
	assert.Equal(t, "/a.png", row.ImageSrc)
	assert.Equal(t, "a", row.ImageAlt)
}
