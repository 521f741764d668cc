package canonicalize

import "encoding/json"

// HashExcluding computes the JCS canonical hash of v after removing the
// given top-level keys. Used for self-referential hashes (spec §4.6: the
// event hash covers the event "minus hash").
func HashExcluding(v interface{}, exclude ...string) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	var generic map[string]interface{}
	if err := json.Unmarshal(b, &generic); err != nil {
		return "", err
	}
	for _, k := range exclude {
		delete(generic, k)
	}
	return CanonicalHash(generic)
}
