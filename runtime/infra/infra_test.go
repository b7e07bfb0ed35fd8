package infra_test

import (
	"testing"

	"github.com/brimdata/parfor/runtime/infra"
	"github.com/brimdata/parfor/runtime/infra/mock"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"
)

func TestCeilings(t *testing.T) {
	ctrl := gomock.NewController(t)
	a := mock.NewMockAnalyzer(ctrl)
	a.EXPECT().LocalParallelism().Return(8)
	a.EXPECT().RemoteParallelism().Return(32)
	a.EXPECT().MaxMemory().Return(1000.0)
	ck, cm := infra.Ceilings(a, 0.5, 0.7)
	assert.Equal(t, 16, ck)
	assert.InDelta(t, 700.0, cm, 1e-9)
}

func TestCeilingsMinimumParallelism(t *testing.T) {
	ctrl := gomock.NewController(t)
	a := mock.NewMockAnalyzer(ctrl)
	a.EXPECT().LocalParallelism().Return(1)
	a.EXPECT().RemoteParallelism().Return(0)
	a.EXPECT().MaxMemory().Return(100.0)
	ck, _ := infra.Ceilings(a, 0.1, 1)
	assert.Equal(t, 1, ck)
}

func TestLocal(t *testing.T) {
	l := infra.NewLocal(infra.Cluster{Nodes: 4, SlotsPerNode: 2, MemoryPerSlot: 512, LocalMemory: 1024, LocalCores: 6})
	assert.Equal(t, 6, l.LocalParallelism())
	assert.Equal(t, 8, l.RemoteParallelism())
	assert.Equal(t, 512.0, l.MaxMemory())

	detected := infra.NewLocal(infra.Cluster{})
	assert.Positive(t, detected.LocalParallelism())
	assert.Zero(t, detected.RemoteParallelism())
	assert.Positive(t, detected.MaxMemory())
}

func TestClusterValidate(t *testing.T) {
	assert.NoError(t, infra.Cluster{}.Validate())
	assert.Error(t, infra.Cluster{Nodes: 2}.Validate())
	assert.Error(t, infra.Cluster{LocalCores: -1}.Validate())
}
