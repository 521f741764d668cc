package canonicalize

import (
	"encoding/json"
	"testing"

	gowebpkijcs "github.com/gowebpki/jcs"
)

// TestJCS_CrossCheckAgainstReferenceImplementation runs golden vectors
// through both the hand-rolled marshaler above and gowebpki/jcs, an
// independent RFC 8785 implementation, and requires byte-identical output.
// ASCII-only vectors: gowebpki/jcs normalizes on the pre-marshaled JSON
// bytes and doesn't share this package's NFC string normalization step, so
// vectors with non-ASCII string values would diverge without meaning
// anything.
func TestJCS_CrossCheckAgainstReferenceImplementation(t *testing.T) {
	vectors := []interface{}{
		map[string]interface{}{"c": 3, "a": 1, "b": 2},
		map[string]interface{}{
			"z": map[string]interface{}{"y": "foo", "x": "bar"},
			"a": 1,
		},
		map[string]interface{}{"html": "<script>alert('xss')</script> &"},
		map[string]interface{}{"nested": []interface{}{1, 2, map[string]interface{}{"b": 2, "a": 1}}},
		map[string]interface{}{"empty_obj": map[string]interface{}{}, "empty_arr": []interface{}{}},
	}

	for i, v := range vectors {
		preMarshaled, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("vector %d: pre-marshal failed: %v", i, err)
		}

		want, err := gowebpkijcs.Transform(preMarshaled)
		if err != nil {
			t.Fatalf("vector %d: reference Transform failed: %v", i, err)
		}

		got, err := JCS(v)
		if err != nil {
			t.Fatalf("vector %d: JCS failed: %v", i, err)
		}

		if string(got) != string(want) {
			t.Errorf("vector %d: mismatch\n  hand-rolled: %s\n  reference:   %s", i, got, want)
		}
	}
}
