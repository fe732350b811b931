package repository

import (
	"time"

	"github.com/okian/tierlearn/pkg/logger"
)

// ContentOption configures a ContentRepository.
type ContentOption func(*ContentRepository)

// WithContentLogger sets the logger for swallowed failures.
func WithContentLogger(l logger.Logger) ContentOption {
	return func(r *ContentRepository) {
		r.log = l
	}
}

// WithLessonsCollection overrides the top-level lessons collection name.
func WithLessonsCollection(name string) ContentOption {
	return func(r *ContentRepository) {
		if name != "" {
			r.lessonsCollection = name
		}
	}
}

// RecordOption configures a RecordStore.
type RecordOption func(*RecordStore)

// WithRecordLogger sets the record store logger.
func WithRecordLogger(l logger.Logger) RecordOption {
	return func(s *RecordStore) {
		s.log = l
	}
}

// WithClock replaces time.Now for lastUpdated stamps.
func WithClock(now func() time.Time) RecordOption {
	return func(s *RecordStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRecordsCollection overrides the analytics collection name.
func WithRecordsCollection(name string) RecordOption {
	return func(s *RecordStore) {
		if name != "" {
			s.collection = name
		}
	}
}
