package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		expected Kind
	}{
		{name: "not found", err: NotFound("inspection %d does not exist", 7), expected: KindNotFound},
		{name: "wrapped precondition", err: fmt.Errorf("create delivery: %w", Precondition("reception is OPEN")), expected: KindPrecondition},
		{name: "plain error", err: errors.New("disk full"), expected: ""},
		{name: "nil", err: nil, expected: ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, KindOf(tc.err))
		})
	}
}

func TestFailureHidesInternalErrors(t *testing.T) {
	s := Failure(errors.New("pq: connection refused"))
	assert.False(t, s.IsSuccess())
	assert.Equal(t, Kind("internal"), s.Kind)
	assert.Equal(t, "internal error", s.Message)

	s = Failure(Validation("comments are required"))
	assert.Equal(t, KindValidation, s.Kind)
	assert.Equal(t, "comments are required", s.Message)
}

func TestSuccess(t *testing.T) {
	s := Success(42, "answer saved")
	assert.True(t, s.IsSuccess())
	if assert.NotNil(t, s.ID) {
		assert.Equal(t, int64(42), *s.ID)
	}
}

func TestFromValidator(t *testing.T) {
	type command struct {
		Name  string `validate:"required"`
		Count int    `validate:"gt=0"`
	}
	err := FromValidator(validator.New().Struct(command{}))
	assert.True(t, IsKind(err, KindValidation))
	assert.Equal(t, "invalid input: Count (gt), Name (required)", err.Error())

	assert.NoError(t, FromValidator(nil))
	plain := errors.New("boom")
	assert.Equal(t, plain, FromValidator(plain))
}
