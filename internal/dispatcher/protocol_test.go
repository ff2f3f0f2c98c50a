package dispatcher

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/nexuscore/orchestrator/internal/nexuserr"
	"github.com/stretchr/testify/require"
)

func TestTagScannerParsesMultipleMessages(t *testing.T) {
	input := "<<STATUS>>\n{\"message\":\"working\"}\n<</STATUS>>\n" +
		"some chatter between tags\n" +
		"<<COMPLETE>>\n{\"summary\":\"done\"}\n<</COMPLETE>>\n"
	var raw strings.Builder
	scanner := newTagScanner(strings.NewReader(input), &raw)

	first, err := scanner.next()
	require.NoError(t, err)
	require.Equal(t, tagStatus, first.Tag)

	second, err := scanner.next()
	require.NoError(t, err)
	require.Equal(t, tagComplete, second.Tag)
	require.JSONEq(t, `{"summary":"done"}`, string(second.Body))

	_, err = scanner.next()
	require.ErrorIs(t, err, io.EOF)
}

func TestTagScannerRejectsUnbalancedOpenTag(t *testing.T) {
	input := "<<COMPLETE>>\n{\"summary\":\"done\"}\n"
	var raw strings.Builder
	scanner := newTagScanner(strings.NewReader(input), &raw)

	_, err := scanner.next()
	require.True(t, errors.Is(err, nexuserr.ErrUnbalancedTags))
}

func TestTagScannerRejectsMismatchedCloseTag(t *testing.T) {
	input := "<<COMPLETE>>\n{}\n<</BLOCKED>>\n"
	var raw strings.Builder
	scanner := newTagScanner(strings.NewReader(input), &raw)

	_, err := scanner.next()
	require.True(t, errors.Is(err, nexuserr.ErrUnbalancedTags))
}
