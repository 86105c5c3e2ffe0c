package iam

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMakeSAID(t *testing.T) {
	id := MakeSAID("user-123")
	assert.Len(t, id, 29) // "sa-" + 26 hex chars
	assert.Regexp(t, `^sa-[0-9a-f]{26}$`, id)

	// Deterministic: same input always yields the same SA ID so a
	// retried provisioning call looks up the same account.
	assert.Equal(t, id, MakeSAID("user-123"))
	assert.NotEqual(t, id, MakeSAID("user-456"))
}

func TestIsAlreadyExists(t *testing.T) {
	assert.True(t, isAlreadyExists(assertErr{"rpc error: code = AlreadyExists desc = service account exists"}))
	assert.False(t, isAlreadyExists(assertErr{"rpc error: code = NotFound desc = no such account"}))
	assert.False(t, isAlreadyExists(nil))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(assertErr{"rpc error: code = NotFound desc = no such account"}))
	assert.False(t, isNotFound(assertErr{"rpc error: code = AlreadyExists desc = service account exists"}))
	assert.False(t, isNotFound(nil))
}

type assertErr struct{ msg string }

func (e assertErr) Error() string { return e.msg }
