// Package trigger turns upstream upload notifications into document references
// for the processing queue.
package trigger

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// ObjectEvent is one record of an S3/MinIO bucket notification.
type ObjectEvent struct {
	Name   string // e.g. "s3:ObjectCreated:Put"
	Bucket string
	Key    string // URL-decoded object key
	Size   int64
}

// Created reports whether the event announces a new or overwritten object.
func (e ObjectEvent) Created() bool {
	name := strings.TrimPrefix(e.Name, "s3:")
	return strings.HasPrefix(name, "ObjectCreated:")
}

type notification struct {
	Records []struct {
		EventName string `json:"eventName"`
		S3        struct {
			Bucket struct {
				Name string `json:"name"`
			} `json:"bucket"`
			Object struct {
				Key  string `json:"key"`
				Size int64  `json:"size"`
			} `json:"object"`
		} `json:"s3"`
	} `json:"Records"`
}

// DecodeNotification parses a bucket notification payload. Object keys arrive
// form-encoded ("receipts/my+receipt.jpg") and are decoded here.
func DecodeNotification(payload []byte) ([]ObjectEvent, error) {
	var n notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return nil, fmt.Errorf("decode notification: %w", err)
	}
	events := make([]ObjectEvent, 0, len(n.Records))
	for _, r := range n.Records {
		key, err := url.QueryUnescape(r.S3.Object.Key)
		if err != nil {
			return nil, fmt.Errorf("decode object key %q: %w", r.S3.Object.Key, err)
		}
		events = append(events, ObjectEvent{
			Name:   r.EventName,
			Bucket: r.S3.Bucket.Name,
			Key:    key,
			Size:   r.S3.Object.Size,
		})
	}
	return events, nil
}
