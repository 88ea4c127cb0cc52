package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// InstrumentDefinitionKey returns the cache key for a full instrument, marks included
func (r *CacheKeyStruct) InstrumentDefinitionKey(instrumentID string) string {
	return fmt.Sprintf("instrument:%s:definition", instrumentID)
}

// InstrumentPayloadKey returns the cache key for the student-facing instrument payload
func (r *CacheKeyStruct) InstrumentPayloadKey(instrumentID string) string {
	return fmt.Sprintf("instrument:%s:payload", instrumentID)
}

// StudentAttemptLockKey returns the key guarding a student's live session for an instrument
func (r *CacheKeyStruct) StudentAttemptLockKey(instrumentID string, studentID int) string {
	return fmt.Sprintf("student:%d:instrument:%s:session", studentID, instrumentID)
}

// StudentSaveRateKey returns the rate limit counter key for progress saves
func (r *CacheKeyStruct) StudentSaveRateKey(studentID int) string {
	return fmt.Sprintf("ratelimit:save:%d", studentID)
}

var CacheKey = NewCacheKeyStruct()
