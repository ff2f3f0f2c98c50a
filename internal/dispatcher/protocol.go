package dispatcher

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/nexuscore/orchestrator/internal/nexuserr"
)

// Recognised worker message tags (§4.3).
const (
	tagStatus            = "STATUS"
	tagComplete          = "COMPLETE"
	tagBlocked           = "BLOCKED"
	tagPermissionRequest = "PERMISSION_REQUEST"
)

// Tags the Dispatcher writes back to a worker's stdin in response to a
// PERMISSION_REQUEST.
const (
	tagPermissionGrant = "PERMISSION_GRANT"
	tagPermissionDeny  = "PERMISSION_DENY"
)

// taggedMessage is one parsed `<<NAME>>\n{json}\n<</NAME>>` block.
type taggedMessage struct {
	Tag  string
	Body []byte
}

// tagScanner reads a worker's stdout line by line and yields one
// taggedMessage per matched open/close pair, tracking open-tag state so
// it can detect unbalanced tags at stream end (§4.3).
type tagScanner struct {
	scanner *bufio.Scanner
	raw     *strings.Builder
}

func newTagScanner(r io.Reader, raw *strings.Builder) *tagScanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	return &tagScanner{scanner: sc, raw: raw}
}

// next returns the next tagged message, or io.EOF when the stream ends
// cleanly with no open tag pending. An open tag still pending at EOF is
// reported as nexuserr.ErrUnbalancedTags.
func (t *tagScanner) next() (taggedMessage, error) {
	var openTag string
	var body strings.Builder

	for t.scanner.Scan() {
		line := t.scanner.Text()
		t.raw.WriteString(line)
		t.raw.WriteByte('\n')

		if openTag == "" {
			if tag, ok := parseOpenTag(line); ok {
				openTag = tag
				body.Reset()
			}
			continue
		}

		if tag, ok := parseCloseTag(line); ok {
			if tag != openTag {
				return taggedMessage{}, fmt.Errorf("dispatcher: close tag %q does not match open tag %q: %w", tag, openTag, nexuserr.ErrUnbalancedTags)
			}
			return taggedMessage{Tag: openTag, Body: []byte(body.String())}, nil
		}
		body.WriteString(line)
		body.WriteByte('\n')
	}

	if err := t.scanner.Err(); err != nil {
		return taggedMessage{}, fmt.Errorf("dispatcher: read worker stdout: %w", err)
	}
	if openTag != "" {
		return taggedMessage{}, fmt.Errorf("dispatcher: stream ended with %s still open: %w", openTag, nexuserr.ErrUnbalancedTags)
	}
	return taggedMessage{}, io.EOF
}

func parseOpenTag(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "<<") || !strings.HasSuffix(line, ">>") || strings.HasPrefix(line, "<</") {
		return "", false
	}
	return line[2 : len(line)-2], true
}

func parseCloseTag(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "<</") || !strings.HasSuffix(line, ">>") {
		return "", false
	}
	return line[3 : len(line)-2], true
}

// writeTag writes one `<<NAME>>\n{json}\n<</NAME>>\n` block to w.
func writeTag(w io.Writer, name string, body []byte) error {
	if _, err := fmt.Fprintf(w, "<<%s>>\n", name); err != nil {
		return err
	}
	if _, err := w.Write(body); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "\n<</%s>>\n", name); err != nil {
		return err
	}
	return nil
}
