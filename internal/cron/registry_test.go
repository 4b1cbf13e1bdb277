package cron

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryStoresJobs(t *testing.T) {
	registry := NewRegistry()
	jobA := &stubJob{name: "a"}
	jobB := &stubJob{name: "b"}
	require.NoError(t, registry.Register(jobA))
	require.NoError(t, registry.Register(jobB))
	require.NoError(t, registry.Register(nil))

	jobs := registry.Jobs()
	require.Len(t, jobs, 2)
	require.Same(t, jobA, jobs[0])
	require.Same(t, jobB, jobs[1])
	require.Equal(t, []string{"a", "b"}, registry.Names())

	jobs[0] = nil
	require.NotNil(t, registry.Jobs()[0], "internal slice leaked")
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	registry := NewRegistry(&stubJob{name: "orphans"}, &stubJob{name: "orphans"})
	require.Equal(t, []string{"orphans"}, registry.Names())
	require.Error(t, registry.Register(&stubJob{name: "orphans"}))

	var zero Registry
	require.NoError(t, zero.Register(&stubJob{name: "x"}))
	require.Equal(t, []string{"x"}, zero.Names())
}
