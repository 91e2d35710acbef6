package recipient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	known := map[string]struct{}{
		"anna@example.org": {},
	}

	res := Validate([]string{
		"Anna@Example.org, bert@example.org;\nnot-an-email",
		"  carla@beispiel.de  ",
		"BERT@example.org",
		"missing@tld",
	}, known)

	assert.Equal(t, 3, res.Valid)
	assert.Equal(t, 2, res.Invalid)
	assert.Equal(t, 1, res.Existing)
	assert.Equal(t, 2, res.New)
	assert.Equal(t, []string{"not-an-email", "missing@tld"}, res.InvalidEmails)
	assert.Equal(t, []string{"Anna@Example.org", "bert@example.org", "carla@beispiel.de"}, res.Emails())
	assert.Equal(t, []string{"bert@example.org", "carla@beispiel.de"}, res.NewEmails())
	assert.False(t, res.ValidatedEmails[0].IsNew)
}

func TestValidateDeterministic(t *testing.T) {
	in := []string{"b@x.de a@x.de", "c@x.de"}
	require.Equal(t, Validate(in, nil), Validate(in, nil))
}

func TestIsValid(t *testing.T) {
	valid := []string{"a@b.de", "first.last+tag@sub.domain.org", "x_y@mail-server.com"}
	invalid := []string{"", "plain", "@b.de", "a@", "a@b", "a@@b.de", "a b@c.de", "a@b.d", "a@-b.de"}

	for _, e := range valid {
		assert.True(t, IsValid(e), e)
	}
	for _, e := range invalid {
		assert.False(t, IsValid(e), e)
	}
}
