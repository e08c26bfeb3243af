package plugin

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveTool(t *testing.T) {
	tests := []struct {
		name     string
		meta     Metadata
		toolName string
		want     string
		wantOK   bool
	}{
		{
			name:     "explicit name wins",
			meta:     Metadata{Tools: []ToolSpec{{Name: "detect"}}},
			toolName: "ocr",
			want:     "ocr",
			wantOK:   true,
		},
		{
			name:   "empty name resolves to default tool",
			meta:   Metadata{Tools: []ToolSpec{{Name: "detect"}, {Name: "default"}}},
			want:   "default",
			wantOK: true,
		},
		{
			name:   "empty name resolves to only tool",
			meta:   Metadata{Tools: []ToolSpec{{Name: "detect"}}},
			want:   "detect",
			wantOK: true,
		},
		{
			name:   "empty name with several tools and no default fails",
			meta:   Metadata{Tools: []ToolSpec{{Name: "a"}, {Name: "b"}}},
			wantOK: false,
		},
		{
			name:   "empty name with no tools fails",
			meta:   Metadata{},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ResolveTool(tt.meta, tt.toolName)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}
