package members

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseReferrer(t *testing.T) {
	id, ok := ParseReferrer([]string{"8274493133"})
	assert.True(t, ok)
	assert.Equal(t, int64(8274493133), id)

	for _, args := range [][]string{nil, {}, {"abc"}, {"-5"}, {"0"}} {
		_, ok := ParseReferrer(args)
		assert.False(t, ok, "args=%v", args)
	}
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "@neo", (&Member{Username: "neo", FirstName: "Thomas"}).DisplayName())
	assert.Equal(t, "Thomas Anderson", (&Member{FirstName: "Thomas", LastName: "Anderson"}).DisplayName())
	assert.Equal(t, "Thomas", (&Member{FirstName: "Thomas"}).DisplayName())
}
