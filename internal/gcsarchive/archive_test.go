package gcsarchive

import "testing"

func TestSplitURI(t *testing.T) {
	tests := []struct {
		uri        string
		wantBucket string
		wantObject string
		wantErr    bool
	}{
		{"gs://my-bucket/reports/run.json", "my-bucket", "reports/run.json", false},
		{"gs://my-bucket/file.json", "my-bucket", "file.json", false},
		{"gs://my-bucket", "", "", true},
		{"gs://my-bucket/", "", "", true},
		{"https://example.com/file.json", "", "", true},
		{"", "", "", true},
	}

	for _, tt := range tests {
		bucket, object, err := splitURI(tt.uri)
		if tt.wantErr {
			if err == nil {
				t.Errorf("splitURI(%q) expected error, got %q/%q", tt.uri, bucket, object)
			}
			continue
		}
		if err != nil {
			t.Errorf("splitURI(%q) failed: %v", tt.uri, err)
			continue
		}
		if bucket != tt.wantBucket || object != tt.wantObject {
			t.Errorf("splitURI(%q) = %q/%q, want %q/%q", tt.uri, bucket, object, tt.wantBucket, tt.wantObject)
		}
	}
}
