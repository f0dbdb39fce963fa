package main

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestShorten(t *testing.T) {
	assert.Equal(t, "boom", shorten("boom", 80))
	assert.Equal(t, "abcdefg...", shorten(strings.Repeat("abcdefghij", 3), 10))

	got := shorten(strings.Repeat("ü", 50), 80)
	assert.True(t, utf8.ValidString(got))
	assert.LessOrEqual(t, len(got), 80)
	assert.True(t, strings.HasSuffix(got, "..."))
}
