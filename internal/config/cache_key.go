package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// StudentSessionKey returns the cache key for a student's login session.
// Written by exstem-backend at login; read here for single-device enforcement.
func (r *CacheKeyStruct) StudentSessionKey(studentID int) string {
	return fmt.Sprintf("login:%d", studentID)
}

// ProctorStateKey returns the cache key for the last known proctoring state
// snapshot of a student's attempt, read by admin monitoring.
func (r *CacheKeyStruct) ProctorStateKey(examID string, studentID int) string {
	return fmt.Sprintf("student:%d:exam:%s:proctor_state", studentID, examID)
}

var CacheKey = NewCacheKeyStruct()
