package upload

import (
	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/config"
)

// Multipart sizing limits of the storage service.
const (
	MinPartSize  int64 = 5 * 1024 * 1024
	PartSizeStep int64 = 1024 * 1024
	MaxParts           = 10000
)

// PartSize returns the smallest part size, starting at MinPartSize and grown
// in PartSizeStep increments, that keeps size within MaxParts parts. Every
// result is a multiple of the cipher block size, so parts can be encrypted
// independently.
func PartSize(size int64) int64 {
	partSize := MinPartSize
	for NumParts(size, partSize) > MaxParts {
		partSize += PartSizeStep
	}
	return partSize
}

// NumParts is ceil(size / partSize).
func NumParts(size, partSize int64) int {
	return int((size + partSize - 1) / partSize)
}

// Concurrency is the number of parts kept in flight. Small transfers run one
// part at a time; so do mobile clients.
func Concurrency(numParts int, profile string) int {
	if numParts < 5 || profile == config.ProfileMobile {
		return 1
	}
	return 2
}

func newMultipartState(size int64, profile string) *MultipartState {
	partSize := PartSize(size)
	n := NumParts(size, partSize)
	return &MultipartState{
		PartSize:    partSize,
		NumParts:    n,
		Concurrency: Concurrency(n, profile),
		Progress:    make(map[int]float64),
		Tokens:      make(map[int]string),
	}
}

// Initialized reports whether the transfer has been created.
func (m *MultipartState) Initialized() bool {
	return m.UploadID != ""
}

func (m *MultipartState) available(idx int) bool {
	_, inFlight := m.Progress[idx]
	_, done := m.Tokens[idx]
	return !inFlight && !done
}

// InFlight counts parts that have started but hold no token.
func (m *MultipartState) InFlight() int {
	n := 0
	for idx := range m.Progress {
		if _, done := m.Tokens[idx]; !done {
			n++
		}
	}
	return n
}

// NextParts returns the available parts to start now, in index order, never
// more than Concurrency minus the parts already in flight.
func (m *MultipartState) NextParts() []int {
	slots := m.Concurrency - m.InFlight()
	var next []int
	for idx := 0; idx < m.NumParts && len(next) < slots; idx++ {
		if m.available(idx) {
			next = append(next, idx)
		}
	}
	return next
}

// ReadyToComplete reports whether every part holds a token and none is in
// flight.
func (m *MultipartState) ReadyToComplete() bool {
	if m.InFlight() > 0 {
		return false
	}
	for idx := 0; idx < m.NumParts; idx++ {
		if _, ok := m.Tokens[idx]; !ok {
			return false
		}
	}
	return true
}

// OrderedTokens lists the tokens by part index.
func (m *MultipartState) OrderedTokens() []string {
	tokens := make([]string, m.NumParts)
	for idx := range tokens {
		tokens[idx] = m.Tokens[idx]
	}
	return tokens
}

// PartRange returns the envelope offset and length of part idx.
func (m *MultipartState) PartRange(idx int, size int64) (off, n int64) {
	off = int64(idx) * m.PartSize
	return off, min(m.PartSize, size-off)
}

func (m *MultipartState) fraction() float64 {
	if m.NumParts == 0 {
		return 0
	}
	var done float64
	for idx := 0; idx < m.NumParts; idx++ {
		if _, ok := m.Tokens[idx]; ok {
			done++
		} else if p, ok := m.Progress[idx]; ok {
			done += p
		}
	}
	return done / float64(m.NumParts)
}
