package lark

import "testing"

func TestSessionKeyShape(t *testing.T) {
	if got := SessionKey("default", "direct", "oc_1"); got != "lark:default:direct:oc_1" {
		t.Fatalf("SessionKey = %q", got)
	}
}

func TestSessionKeyDeterministicAndDistinct(t *testing.T) {
	first := SessionKey("a1", "group", "oc_1")
	if second := SessionKey("a1", "group", "oc_1"); second != first {
		t.Fatalf("SessionKey not deterministic: %q vs %q", first, second)
	}

	keys := map[string]bool{}
	for _, tuple := range [][3]string{
		{"a1", "direct", "oc_1"},
		{"a1", "group", "oc_1"},
		{"a1", "direct", "oc_2"},
		{"a2", "direct", "oc_1"},
	} {
		key := SessionKey(tuple[0], tuple[1], tuple[2])
		if keys[key] {
			t.Fatalf("collision for tuple %v: %q", tuple, key)
		}
		keys[key] = true
	}
}

func TestSessionKeyCaseNormalized(t *testing.T) {
	// Case-differing chat ids collapse to one key. Lark issues lowercase ids,
	// so this normalization never merges distinct provider chats.
	lower := SessionKey("default", "direct", "oc_abc")
	upper := SessionKey("default", "direct", "OC_ABC")
	if lower != upper {
		t.Fatalf("case-differing ids produced distinct keys: %q vs %q", lower, upper)
	}
}
