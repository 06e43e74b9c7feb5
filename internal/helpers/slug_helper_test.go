package helpers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	cases := []struct {
		name  string
		parts []string
		want  string
	}{
		{"single", []string{"Electronics"}, "electronics"},
		{"chain", []string{"Electronics", "Phones"}, "electronics-phones"},
		{"accents", []string{"Café", "Crème Brûlée"}, "cafe-creme-brulee"},
		{"punctuation collapses", []string{"  Men's -- Shoes!! "}, "men-s-shoes"},
		{"non latin", []string{"电子"}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Slugify(tc.parts...))
		})
	}
}
