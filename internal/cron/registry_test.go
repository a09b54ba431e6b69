package cron

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryKeepsOrderAndSkipsNil(t *testing.T) {
	jobA := &testJob{name: "a"}
	jobB := &testJob{name: "b"}
	registry, err := NewRegistry(jobA, nil)
	require.NoError(t, err)
	require.NoError(t, registry.Register(jobB))
	require.NoError(t, registry.Register(nil))

	jobs := registry.Jobs()
	require.Len(t, jobs, 2)
	assert.Same(t, jobA, jobs[0])
	assert.Same(t, jobB, jobs[1])

	jobs[0] = nil
	assert.NotNil(t, registry.Jobs()[0])
}

func TestRegistryRejectsDuplicateAndBlankNames(t *testing.T) {
	_, err := NewRegistry(&testJob{name: "expiry"}, &testJob{name: "expiry"})
	require.ErrorContains(t, err, `"expiry" registered twice`)

	var registry Registry
	require.Error(t, registry.Register(&testJob{}))
	require.NoError(t, registry.Register(&testJob{name: "retention"}))
	assert.Len(t, registry.Jobs(), 1)
}
