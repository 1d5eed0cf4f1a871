package memory

import (
	"strings"
	"testing"

	"rentalcore/pkg/domain"
)

func TestBucketCodecRoundTrip(t *testing.T) {
	snap := Snapshot{
		Properties: map[string]Property{"p1": {Base: domain.Base{ID: "p1"}, Title: "Loft", Features: []string{"lift"}}},
	}
	var restored Snapshot
	for _, bucket := range Buckets {
		data, err := snap.EncodeBucket(bucket)
		if err != nil {
			t.Fatalf("encode %s: %v", bucket, err)
		}
		if err := restored.DecodeBucket(bucket, data); err != nil {
			t.Fatalf("decode %s: %v", bucket, err)
		}
	}
	if restored.Properties["p1"].Title != "Loft" || restored.Users == nil {
		t.Fatalf("unexpected restored snapshot %+v", restored)
	}
}

func TestBucketCodecErrors(t *testing.T) {
	if _, err := (Snapshot{}).EncodeBucket("nope"); err == nil {
		t.Fatalf("expected unknown bucket error")
	}
	var s Snapshot
	if err := s.DecodeBucket("legacy", []byte("{}")); err != nil {
		t.Fatalf("unknown bucket should be ignored: %v", err)
	}
	err := s.DecodeBucket(BucketRequests, []byte("{"))
	if err == nil || !strings.Contains(err.Error(), "decode requests") {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestWrittenPendingSkipsUnchangedBuckets(t *testing.T) {
	w := Written{}
	snap := Snapshot{Requests: map[string]Request{"r1": {Base: domain.Base{ID: "r1"}, Status: domain.RequestStatusPending}}}
	first, err := w.Pending(snap)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(first) != len(Buckets) {
		t.Fatalf("expected every bucket on first write, got %d", len(first))
	}
	w.Mark(first)
	if again, _ := w.Pending(snap); len(again) != 0 {
		t.Fatalf("expected nothing pending, got %+v", again)
	}

	snap.Requests["r1"] = Request{Base: domain.Base{ID: "r1"}, Status: domain.RequestStatusApproved}
	next, err := w.Pending(snap)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(next) != 1 || next[0].Bucket != BucketRequests {
		t.Fatalf("expected only requests pending, got %+v", next)
	}
}
