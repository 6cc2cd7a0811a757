package atparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

// Test_feedNeverBlocksOrDoublesEvents checks that for any byte sequence,
// however garbled, the parser is back at CmdHeader with an empty scratch
// buffer immediately after every Event and after a line terminator, and
// that a "\r\n" terminator pair yields at most one Event: the '\n' after
// the '\r' produces none.
func Test_feedNeverBlocksOrDoublesEvents(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var s State
		body := rapid.SliceOfN(rapid.SampledFrom([]byte(
			"ATBRSFCINDMEGBACOSHLPDV=?,0123456789 \t")), 0, 64).Draw(t, "body")

		for _, b := range body {
			_, done := s.Feed(b)
			if done {
				assert.Equal(t, PhaseCmdHeader, s.phase, "parser must be back at CmdHeader immediately after any completed Event")
				assert.Equal(t, 0, s.lineSize, "scratch buffer must be empty immediately after any completed Event")
			}
		}
		s.Feed('\r')
		_, doubled := s.Feed('\n')
		assert.False(t, doubled, "the '\\n' of a \"\\r\\n\" pair must not yield a second Event")

		assert.Equal(t, PhaseCmdHeader, s.phase, "parser must return to CmdHeader once a line terminator has been fed")
		assert.Equal(t, 0, s.lineSize, "scratch buffer must be empty once a line terminator has been fed")
	})
}
