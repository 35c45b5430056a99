package ioutil

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// MaxErrorBody bounds how much of a failed response ends up in an error
const MaxErrorBody = 512

// ReadLimited reads up to limit bytes from r. A read failure is described in
// the returned string instead of being dropped.
func ReadLimited(r io.Reader, limit int64) string {
	body, err := io.ReadAll(io.LimitReader(r, limit))
	if err != nil {
		return fmt.Sprintf("<unreadable: %v>", err)
	}
	return string(body)
}

// ErrorBody summarizes a failed response body on one line, for error
// messages and logs. Empty bodies yield "".
func ErrorBody(r io.Reader) string {
	body := ReadLimited(r, MaxErrorBody+1)
	truncated := len(body) > MaxErrorBody
	if truncated {
		cut := MaxErrorBody
		for cut > 0 && !utf8.RuneStart(body[cut]) {
			cut--
		}
		body = body[:cut]
	}
	body = strings.Join(strings.Fields(body), " ")
	if truncated {
		body += "..."
	}
	return body
}
