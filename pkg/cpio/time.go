package cpio

import "time"

// unixTime converts a 32-bit wire mtime to a UTC time.Time.
func unixTime(sec uint32) time.Time {
	return time.Unix(int64(sec), 0).UTC()
}
