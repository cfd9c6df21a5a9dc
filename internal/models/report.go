package models

import "errors"

// ChunkStatus is the outcome of embedding and storing one chunk.
type ChunkStatus struct {
	FilePath string `json:"file_path"`
	Title    string `json:"title"`
	Index    int    `json:"index"`
	Total    int    `json:"total"`
	Err      error  `json:"-"`
}

func (s ChunkStatus) OK() bool { return s.Err == nil }

// SectionReport holds one status per chunk of an ingested section. Err is
// set when the section was rejected before chunking.
type SectionReport struct {
	FilePath string        `json:"file_path"`
	Title    string        `json:"title"`
	Chunks   []ChunkStatus `json:"chunks"`
	Err      error         `json:"-"`
}

// FullyIngested is true only when every chunk was stored. A section with
// no content has no chunks and counts as ingested.
func (r SectionReport) FullyIngested() bool {
	if r.Err != nil {
		return false
	}
	for _, c := range r.Chunks {
		if !c.OK() {
			return false
		}
	}
	return true
}

// Failures returns the failed chunk statuses.
func (r SectionReport) Failures() []ChunkStatus {
	var failed []ChunkStatus
	for _, c := range r.Chunks {
		if !c.OK() {
			failed = append(failed, c)
		}
	}
	return failed
}

// BatchReport collects section reports in input order.
type BatchReport struct {
	Sections []SectionReport `json:"sections"`
}

func (b BatchReport) Succeeded() int {
	n := 0
	for _, s := range b.Sections {
		if s.FullyIngested() {
			n++
		}
	}
	return n
}

func (b BatchReport) Failed() int {
	return len(b.Sections) - b.Succeeded()
}

// ChunksStored counts chunks that reached the store.
func (b BatchReport) ChunksStored() int {
	n := 0
	for _, s := range b.Sections {
		for _, c := range s.Chunks {
			if c.OK() {
				n++
			}
		}
	}
	return n
}

// StorageDown is true when nothing was stored and at least one chunk
// failed because the store was unavailable.
func (b BatchReport) StorageDown() bool {
	unavailable := 0
	for _, s := range b.Sections {
		for _, c := range s.Chunks {
			if c.OK() {
				return false
			}
			if errors.Is(c.Err, ErrStorageUnavailable) {
				unavailable++
			}
		}
	}
	return unavailable > 0
}
