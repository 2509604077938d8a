package db

import "strings"

// IsUniqueViolation recognizes duplicate-key errors across the two
// supported dialects. The gorm version in use does not translate driver
// errors, so this falls back on the driver messages.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || // sqlite
		strings.Contains(msg, "Duplicate entry") // mysql 1062
}
