package vectorstore

import (
	"strconv"

	"github.com/google/uuid"
)

// PointID derives the stable id of chunk index of sourceID: a name-based
// UUID (v5, URL namespace) of "<sourceID>:<index>".
func PointID(sourceID string, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(sourceID+":"+strconv.Itoa(index))).String()
}
