package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Cool Clip!!":       "cool-clip",
		"  Hello   World ":  "hello-world",
		"big-tits":          "big-tits",
		"--Already--Dashed": "already-dashed",
		"Ünïcode ñame":      "n-code-ame",
		"!!!":               "",
		"":                  "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Slugify(in), in)
	}
}

func TestSlugify_Truncates(t *testing.T) {
	slug := Slugify(strings.Repeat("a", 250))
	assert.Len(t, slug, MaxSlugLength)

	// 截断处的 - 去掉
	slug = Slugify(strings.Repeat("a", 199) + " b")
	assert.Equal(t, strings.Repeat("a", 199), slug)
}
