package constants

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		in     string
		want   Category
		wantOK bool
	}{
		{"Food", Food, true},
		{"  office ", Office, true},
		{"Restaurant", Food, true},
		{"petrol", Fuel, true},
		{"uber", Travel, true},
		{"pharmacy", Healthcare, true},
		{"uncategorized", Uncategorized, true},
		{"spaceship parts", Uncategorized, false},
		{"", Uncategorized, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := Canonicalize(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestAsStringSlice(t *testing.T) {
	assert.Equal(t, []string{"Food", "Office", "Travel", "Equipment", "Entertainment", "Fuel", "Healthcare", "Other"}, AsStringSlice())
}

func TestMapContentTypeToFormat(t *testing.T) {
	assert.Equal(t, PDF, MapContentTypeToFormat("application/pdf"))
	assert.Equal(t, IMAGE, MapContentTypeToFormat("image/png; charset=binary"))
	assert.Equal(t, IMAGE, MapContentTypeToFormat("IMAGE/HEIC"))
	assert.Equal(t, UNKNOWN, MapContentTypeToFormat("text/plain"))
	assert.Equal(t, "image/jpeg", ContentTypeForExt(".JPG"))
	assert.Equal(t, "", ContentTypeForExt("docx"))
}
