package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecorderKeepsMostRecent(t *testing.T) {
	r := NewRecorder(2)
	r.Notify(Info, "one")
	r.Notify(Warning, "two")
	r.Notify(Error, "three")

	got := r.Recent()
	if assert.Len(t, got, 2) {
		assert.Equal(t, "two", got[0].Message)
		assert.Equal(t, Warning, got[0].Kind)
		assert.Equal(t, "three", got[1].Message)
		assert.Equal(t, Error, got[1].Kind)
	}
}
