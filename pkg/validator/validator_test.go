package validator

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	Name *string `json:"name,omitempty"`
}

type request struct {
	ID     *uint64  `json:"id,omitempty"`
	Action *string  `json:"action,omitempty"`
	Emails []string `json:"emails,omitempty"`
	Items  []*item  `json:"items,omitempty"`
}

var requestValidator = MustForm(map[string]Validator{
	"id": &UInt64{},
	"action": &String{
		Enum: []string{"reset_retry", "mark_complete"},
	},
	"emails": &Slice{
		Optional:  true,
		MaxLen:    2,
		Validator: &String{Regex: regexp.MustCompile(`@`)},
	},
	"items": &Slice{
		Optional: true,
		Validator: MustForm(map[string]Validator{
			"name": &String{MinLen: 2},
		}),
	},
})

func ptr[T any](v T) *T {
	return &v
}

func TestFormValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		req := &request{
			ID:     ptr(uint64(1)),
			Action: ptr("reset_retry"),
			Emails: []string{"a@b.de"},
			Items:  []*item{{Name: ptr("ok")}},
		}
		require.NoError(t, requestValidator.Validate(req))
	})

	t.Run("missing required", func(t *testing.T) {
		err := requestValidator.Validate(&request{Action: ptr("reset_retry")})
		assert.ErrorIs(t, err, ErrRequired)
	})

	t.Run("enum", func(t *testing.T) {
		err := requestValidator.Validate(&request{ID: ptr(uint64(1)), Action: ptr("delete")})
		assert.ErrorIs(t, err, ErrNotAllowed)
	})

	t.Run("slice element", func(t *testing.T) {
		err := requestValidator.Validate(&request{
			ID:     ptr(uint64(1)),
			Action: ptr("mark_complete"),
			Emails: []string{"nope"},
		})
		assert.ErrorIs(t, err, ErrBadFormat)
	})

	t.Run("slice too long", func(t *testing.T) {
		err := requestValidator.Validate(&request{
			ID:     ptr(uint64(1)),
			Action: ptr("mark_complete"),
			Emails: []string{"a@b", "c@d", "e@f"},
		})
		assert.ErrorIs(t, err, ErrTooLong)
	})

	t.Run("nested form", func(t *testing.T) {
		err := requestValidator.Validate(&request{
			ID:     ptr(uint64(1)),
			Action: ptr("mark_complete"),
			Items:  []*item{{Name: ptr("x")}},
		})
		assert.ErrorIs(t, err, ErrTooShort)
	})
}

func TestMustFormPanicsOnNilValidator(t *testing.T) {
	assert.Panics(t, func() {
		MustForm(map[string]Validator{"id": nil})
	})
}
