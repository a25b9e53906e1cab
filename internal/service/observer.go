package service

import "time"

// Observer receives ranking and suggestion outcomes for metrics
type Observer interface {
	RecordRanking(source string, duration time.Duration, success bool)
	RecordStaleDiscard()
	RecordFallback()
	RecordSuggestion(success bool)
}

// NopObserver discards all observations
type NopObserver struct{}

func (NopObserver) RecordRanking(string, time.Duration, bool) {}
func (NopObserver) RecordStaleDiscard()                       {}
func (NopObserver) RecordFallback()                           {}
func (NopObserver) RecordSuggestion(bool)                     {}
