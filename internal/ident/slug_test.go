package ident

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlug(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"simple", "Laptop HP", "laptop_hp"},
		{"markup", "<b>Laptop</b> HP", "laptop_hp"},
		{"accents", "Impresión Láser", "impresion_laser"},
		{"punctuation dropped", "Papel (bond) A4!", "papel_bond_a4"},
		{"hyphen and underscore collapse", "tinta - _ negra", "tinta_negra"},
		{"leading and trailing separators", "  -Tóner-  ", "toner"},
		{"slash joins", "HP-250/G8", "hp_250g8"},
		{"empty", "", EmptySlug},
		{"nothing usable", "¿?¡!", EmptySlug},
		{"markup only", "<br/>", EmptySlug},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Slug(tt.input))
		})
	}
}

func TestSlugTruncates(t *testing.T) {
	long := strings.Repeat("abcde ", 30)
	s := Slug(long)
	assert.LessOrEqual(t, len(s), MaxSlugLength)
	assert.False(t, strings.HasSuffix(s, "_"))
	assert.True(t, strings.HasPrefix(s, "abcde_abcde"))
}

func TestSlugStableAcrossMarkup(t *testing.T) {
	a := Slug("Laptop HP")
	b := Slug("<p><b>Laptop</b>&nbsp;<i>HP</i></p>")
	assert.Equal(t, a, b)
}

func TestAllocatorSuffixesDuplicates(t *testing.T) {
	a := NewSlugAllocator()

	assert.Equal(t, "laptop_hp", a.Allocate("Laptop HP"))
	assert.Equal(t, "laptop_hp_1", a.Allocate("Laptop HP"))
	assert.Equal(t, "laptop_hp_2", a.Allocate("<b>laptop hp</b>"))
	assert.Equal(t, 3, a.Len())
}

func TestAllocatorRespectsReserved(t *testing.T) {
	a := NewSlugAllocator("laptop_hp", "laptop_hp_1")

	assert.Equal(t, "laptop_hp_2", a.Allocate("Laptop HP"))
	assert.True(t, a.Taken("laptop_hp_2"))
	assert.Equal(t, "mouse", a.Allocate("Mouse"))
}

func TestAllocatorsAreIndependent(t *testing.T) {
	a := NewSlugAllocator()
	b := NewSlugAllocator()

	assert.Equal(t, "laptop_hp", a.Allocate("Laptop HP"))
	assert.Equal(t, "laptop_hp", b.Allocate("Laptop HP"))
}
