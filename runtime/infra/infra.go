// Package infra reports the resources available for executing parfor
// loops locally and on the cluster.
package infra

//go:generate go tool mockgen -destination=mock/mock_infra.go -package=mock . Analyzer

import (
	"errors"
	"runtime"

	"github.com/brimdata/parfor/pkg/bytesize"
	"github.com/pbnjay/memory"
)

type Analyzer interface {
	// LocalParallelism is the number of local worker slots.
	LocalParallelism() int
	// RemoteParallelism is the number of cluster worker slots, zero
	// without a cluster.
	RemoteParallelism() int
	// MaxMemory is the memory in bytes of one execution slot.
	MaxMemory() float64
}

// Cluster describes the remote execution tier.  A zero Cluster means
// local execution only.
type Cluster struct {
	Nodes         int            `yaml:"nodes"`
	SlotsPerNode  int            `yaml:"slots_per_node"`
	MemoryPerSlot bytesize.Bytes `yaml:"memory_per_slot"`
	// LocalMemory overrides the detected local memory when positive.
	LocalMemory bytesize.Bytes `yaml:"local_memory"`
	// LocalCores overrides the detected core count when positive.
	LocalCores int `yaml:"local_cores"`
}

func (c Cluster) Validate() error {
	if c.Nodes < 0 || c.SlotsPerNode < 0 || c.MemoryPerSlot < 0 || c.LocalMemory < 0 || c.LocalCores < 0 {
		return errors.New("cluster resources must not be negative")
	}
	if c.Nodes > 0 && c.SlotsPerNode == 0 {
		return errors.New("cluster nodes require slots_per_node")
	}
	return nil
}

// Local is an Analyzer for this machine and the configured cluster.
type Local struct {
	cluster Cluster
}

var _ Analyzer = (*Local)(nil)

func NewLocal(cluster Cluster) *Local {
	return &Local{cluster: cluster}
}

func (l *Local) LocalParallelism() int {
	if l.cluster.LocalCores > 0 {
		return l.cluster.LocalCores
	}
	return runtime.NumCPU()
}

func (l *Local) RemoteParallelism() int {
	return l.cluster.Nodes * l.cluster.SlotsPerNode
}

// MaxMemory is the smaller of the local memory and the memory of a
// cluster slot, since a plan may place a worker on either tier.
func (l *Local) MaxMemory() float64 {
	local := float64(l.cluster.LocalMemory)
	if local <= 0 {
		local = float64(memory.TotalMemory())
	}
	if l.RemoteParallelism() > 0 && l.cluster.MemoryPerSlot > 0 {
		return min(local, float64(l.cluster.MemoryPerSlot))
	}
	return local
}

// Ceilings returns the parallelism ceiling ck and the memory ceiling cm
// of a, scaled by the utilization factors parFactor and memFactor.
func Ceilings(a Analyzer, parFactor, memFactor float64) (int, float64) {
	k := max(a.LocalParallelism(), a.RemoteParallelism())
	ck := max(1, int(float64(k)*parFactor))
	return ck, a.MaxMemory() * memFactor
}
