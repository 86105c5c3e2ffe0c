package objectstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMakeBucketName(t *testing.T) {
	c := &Client{gcpProject: "sandbox-prod"}

	name := c.MakeBucketName("user-123")
	assert.Regexp(t, `^sandbox-prod-u-[0-9a-f]{12}$`, name)

	// Deterministic: provisioning a bucket twice for the same user must
	// resolve to the same name.
	assert.Equal(t, name, c.MakeBucketName("user-123"))
	assert.NotEqual(t, name, c.MakeBucketName("user-456"))
}

func TestMakeBucketName_ScopedByProject(t *testing.T) {
	a := &Client{gcpProject: "sandbox-prod"}
	b := &Client{gcpProject: "sandbox-staging"}

	assert.NotEqual(t, a.MakeBucketName("user-123"), b.MakeBucketName("user-123"))
}
