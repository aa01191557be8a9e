package vectorstore

import (
	"strconv"

	"github.com/google/uuid"
)

// pointID derives a deterministic Qdrant point UUID from a snippet's
// (document_id, sub_id), exactly as the teacher's sibling repo derives
// point UUIDs from opaque application ids (qdrant.go's doc.ID handling) —
// generalized here to a namespaced SHA1 UUID so re-upserting the same
// snippet always resolves to the same point.
var pointNamespace = uuid.MustParse("6f9aa5b2-0c7f-4fb6-9f8c-9a2f9d9c9b10")

func pointID(documentID string, subID int) uuid.UUID {
	return uuid.NewSHA1(pointNamespace, []byte(snippetKey(documentID, subID)))
}

func snippetKey(documentID string, subID int) string {
	return documentID + "/" + strconv.Itoa(subID)
}
