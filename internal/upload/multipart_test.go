package upload

import (
	"testing"

	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/config"
	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/cryptox"
	"github.com/stretchr/testify/assert"
)

const mib = 1024 * 1024

func TestPartSize(t *testing.T) {
	tests := []struct {
		name string
		size int64
		want int64
	}{
		{name: "small", size: 12 * mib, want: 5 * mib},
		{name: "max parts at minimum", size: MaxParts * MinPartSize, want: 5 * mib},
		{name: "one byte over", size: MaxParts*MinPartSize + 1, want: 6 * mib},
		{name: "large", size: 100 << 30, want: 11 * mib},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PartSize(tt.size)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, NumParts(tt.size, got), MaxParts)
			assert.Zero(t, got%cryptox.BlockSize)
		})
	}
}

func TestConcurrency(t *testing.T) {
	assert.Equal(t, 1, Concurrency(3, config.ProfileDesktop))
	assert.Equal(t, 1, Concurrency(4, config.ProfileDesktop))
	assert.Equal(t, 2, Concurrency(5, config.ProfileDesktop))
	assert.Equal(t, 1, Concurrency(20, config.ProfileMobile))
}

func TestNewMultipartState(t *testing.T) {
	m := newMultipartState(12*mib+128, config.ProfileDesktop)
	assert.Equal(t, int64(5*mib), m.PartSize)
	assert.Equal(t, 3, m.NumParts)
	assert.Equal(t, 1, m.Concurrency)
	assert.False(t, m.Initialized())

	off, n := m.PartRange(2, 12*mib+128)
	assert.Equal(t, int64(10*mib), off)
	assert.Equal(t, int64(2*mib+128), n)
}

func TestNextParts(t *testing.T) {
	m := &MultipartState{NumParts: 4, Concurrency: 2, Progress: map[int]float64{}, Tokens: map[int]string{}}

	assert.Equal(t, []int{0, 1}, m.NextParts())

	m.Progress[0] = 0.3
	m.Progress[1] = 0
	assert.Empty(t, m.NextParts())
	assert.Equal(t, 2, m.InFlight())

	m.Tokens[0] = "t0"
	m.Progress[0] = 1
	assert.Equal(t, []int{2}, m.NextParts())
	assert.Equal(t, 1, m.InFlight())
}

func TestReadyToComplete(t *testing.T) {
	m := &MultipartState{NumParts: 3, Concurrency: 1, Progress: map[int]float64{}, Tokens: map[int]string{1: "t1"}}
	assert.False(t, m.ReadyToComplete())
	assert.Equal(t, []int{0}, m.NextParts())

	m.Tokens[0] = "t0"
	m.Progress[2] = 0.5
	assert.False(t, m.ReadyToComplete())

	m.Tokens[2] = "t2"
	assert.True(t, m.ReadyToComplete())
	assert.Equal(t, []string{"t0", "t1", "t2"}, m.OrderedTokens())
	assert.InDelta(t, 1.0, m.fraction(), 1e-9)
}
