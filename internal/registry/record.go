package registry

import "encoding/json"

// Record is the metadata the registry keeps for one stored file. CreatedAt is
// milliseconds since epoch kept as a string, exactly as the registry stores it.
type Record struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	S3Key       string `json:"s3_key"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	CreatedAt   string `json:"created_at"`
	URL         string `json:"url"`
}

// decodeRecords extracts file records from a registry list payload. The
// registry is not consistent about its response shape: sometimes a bare JSON
// array, sometimes an object wrapping the array under "data". Anything else
// decodes to an empty result rather than an error, and individual elements
// that fail to decode are skipped so one malformed record cannot poison the
// whole listing.
func decodeRecords(body []byte) []Record {
	var elements []json.RawMessage
	if err := json.Unmarshal(body, &elements); err != nil {
		var wrapped struct {
			Data []json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(body, &wrapped); err != nil {
			return nil
		}
		elements = wrapped.Data
	}

	records := make([]Record, 0, len(elements))
	for _, el := range elements {
		var rec Record
		if err := json.Unmarshal(el, &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records
}

// decodeRecord extracts a single file record, tolerating the same bare /
// data-wrapped inconsistency as decodeRecords.
func decodeRecord(body []byte) (Record, bool) {
	var rec Record
	if err := json.Unmarshal(body, &rec); err == nil && rec.S3Key != "" {
		return rec, true
	}

	var wrapped struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil || len(wrapped.Data) == 0 {
		return Record{}, false
	}
	if err := json.Unmarshal(wrapped.Data, &rec); err != nil {
		return Record{}, false
	}
	return rec, rec.S3Key != ""
}
