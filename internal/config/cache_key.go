package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// SessionLockKey returns the key guarding mutations of one assessment session
func (r *CacheKeyStruct) SessionLockKey(token string) string {
	return fmt.Sprintf("assessment:%s:lock", token)
}

// TestDurationKey returns the cache key for a test's allotted duration in seconds
func (r *CacheKeyStruct) TestDurationKey(testID string) string {
	return fmt.Sprintf("test:%s:duration", testID)
}

// QuestionTestCasesKey returns the cache key for a question's hidden test cases
func (r *CacheKeyStruct) QuestionTestCasesKey(testID, questionKey string) string {
	return fmt.Sprintf("test:%s:question:%s:cases", testID, questionKey)
}

var CacheKey = NewCacheKeyStruct()
