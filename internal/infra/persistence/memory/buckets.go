package memory

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Bucket names used by the snapshot-persisting backends. Each bucket holds
// one collection encoded as a JSON object keyed by id.
const (
	BucketUsers      = "users"
	BucketProperties = "properties"
	BucketRequests   = "requests"
	BucketShortlists = "shortlists"
)

// Buckets lists every persisted bucket in write order.
var Buckets = []string{BucketUsers, BucketProperties, BucketRequests, BucketShortlists}

// EncodeBucket marshals the collection named by bucket.
func (s Snapshot) EncodeBucket(bucket string) ([]byte, error) {
	var v any
	switch bucket {
	case BucketUsers:
		v = nonNil(s.Users)
	case BucketProperties:
		v = nonNil(s.Properties)
	case BucketRequests:
		v = nonNil(s.Requests)
	case BucketShortlists:
		v = nonNil(s.Shortlists)
	default:
		return nil, fmt.Errorf("unknown bucket %q", bucket)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", bucket, err)
	}
	return data, nil
}

// DecodeBucket unmarshals payload into the collection named by bucket.
// Unknown buckets are ignored so older tables with extra rows still load.
func (s *Snapshot) DecodeBucket(bucket string, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	var target any
	switch bucket {
	case BucketUsers:
		target = &s.Users
	case BucketProperties:
		target = &s.Properties
	case BucketRequests:
		target = &s.Requests
	case BucketShortlists:
		target = &s.Shortlists
	default:
		return nil
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("decode %s: %w", bucket, err)
	}
	return nil
}

// BucketPayload is one encoded collection ready to be written.
type BucketPayload struct {
	Bucket string
	Data   []byte
}

// Written remembers the payload last persisted for each bucket, so a
// snapshot backend rewrites only the collections a commit touched.
type Written map[string][]byte

// Pending encodes every bucket of s and returns, in Buckets order, the ones
// whose payload differs from what was last marked.
func (w Written) Pending(s Snapshot) ([]BucketPayload, error) {
	var out []BucketPayload
	for _, bucket := range Buckets {
		data, err := s.EncodeBucket(bucket)
		if err != nil {
			return nil, err
		}
		if prev, ok := w[bucket]; ok && bytes.Equal(prev, data) {
			continue
		}
		out = append(out, BucketPayload{Bucket: bucket, Data: data})
	}
	return out, nil
}

// Mark records payloads as persisted.
func (w Written) Mark(payloads []BucketPayload) {
	for _, p := range payloads {
		w[p.Bucket] = p.Data
	}
}

func nonNil[T any](m map[string]T) map[string]T {
	if m == nil {
		return map[string]T{}
	}
	return m
}
