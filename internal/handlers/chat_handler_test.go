package handlers

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteEvent(t *testing.T) {
	cases := []struct {
		name  string
		event string
		data  string
		want  string
	}{
		{"single line", "", "Hello", "data: Hello\n\n"},
		{"newline", "", "a\nb", "data: a\ndata: b\n\n"},
		{"carriage return", "", "a\rb", "data: a\ndata: b\n\n"},
		{"crlf", "", "a\r\nb", "data: a\ndata: b\n\n"},
		{"trailing newline", "", "a\n", "data: a\ndata: \n\n"},
		{"named event", "done", "[DONE]", "event: done\ndata: [DONE]\n\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			w := bufio.NewWriter(&buf)
			writeEvent(w, tc.event, tc.data)
			require.NoError(t, w.Flush())
			assert.Equal(t, tc.want, buf.String())
		})
	}
}
