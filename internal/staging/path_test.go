package staging

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPath(t *testing.T) {
	file := Target{Category: CategoryFiles, Name: "abc123", Ext: ExtData, RequestID: "req1"}
	msg := Target{Category: CategoryMessages, Name: "m9", Ext: ExtRecord, RequestID: "req2"}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"file with identity", Path("app", "anon", file), "staging/2/app:anon/put-if-nonexistent/temp/abc123.data/req1"},
		{"file without identity", Path("app", "", file), "staging/2/app/put-if-nonexistent/temp/abc123.data/req1"},
		{"message record", Path("app", "anon", msg), "staging/2/app:anon/put-if-nonexistent/msgs/m9.rcrd/req2"},
		{"touch", TouchPath("app", "anon", file), "staging/2/app:anon/touch:put-if-nonexistent/temp/abc123.data/req1"},
		{"cloud path", CloudPath(file), "temp/abc123.data"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func TestNewRequestID(t *testing.T) {
	a, b := NewRequestID(), NewRequestID()
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
	assert.NotContains(t, a, "-")
}
