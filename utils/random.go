package utils

import (
	"crypto/rand"
)

// recordIDLength matches the id shape the system of record generates, so
// locally synthesized ids can be stored verbatim on merge.
const recordIDLength = 15

const recordIDCharset = "abcdefghijklmnopqrstuvwxyz0123456789"

// GenerateRecordID returns a new random record id. Ids are assigned once, at
// creation, and never regenerated.
func GenerateRecordID() (string, error) {
	byt := make([]byte, recordIDLength)
	if _, err := rand.Read(byt); err != nil {
		return "", err
	}

	for i := range byt {
		byt[i] = recordIDCharset[int(byt[i])%len(recordIDCharset)]
	}
	return string(byt), nil
}
