package llm

import (
	"reflect"
	"testing"
)

func TestStripReasoningTags(t *testing.T) {
	in := "<think>scratch work here</think>final answer"
	if got := StripReasoningTags(in); got != "final answer" {
		t.Fatalf("got %q", got)
	}
	if got := StripReasoningTags("no tags here"); got != "no tags here" {
		t.Fatalf("unmodified text changed: %q", got)
	}
	// Unmatched opening tag: left unchanged.
	if got := StripReasoningTags("<think>never closes"); got != "<think>never closes" {
		t.Fatalf("got %q", got)
	}
}

func TestParseIntListLiteral_Fenced(t *testing.T) {
	ints, err := ParseIntListLiteral("```json\n[0, 2]\n```")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if !reflect.DeepEqual(ints, []int{0, 2}) {
		t.Fatalf("got %v", ints)
	}
}

func TestParseIntListLiteral_Bracketed(t *testing.T) {
	ints, err := ParseIntListLiteral("The supporting docs are [1, 3, 5].")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if !reflect.DeepEqual(ints, []int{1, 3, 5}) {
		t.Fatalf("got %v", ints)
	}
}

func TestParseIntListLiteral_LineScan(t *testing.T) {
	text := "Here is my reasoning.\n[0, 2]\nThat's all."
	ints, err := ParseIntListLiteral(text)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if !reflect.DeepEqual(ints, []int{0, 2}) {
		t.Fatalf("got %v", ints)
	}
}

// "Here are the supporting docs: 0, 2" has no
// brackets at all, so tiers 1-3 fail and the integer-run extraction succeeds.
func TestParseIntListLiteral_IntegerRunFallback(t *testing.T) {
	ints, err := ParseIntListLiteral("Here are the supporting docs: 0, 2")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if !reflect.DeepEqual(ints, []int{0, 2}) {
		t.Fatalf("got %v", ints)
	}
}

func TestParseIntListLiteral_AllFail(t *testing.T) {
	_, err := ParseIntListLiteral("no numbers here at all")
	if err != ErrParse {
		t.Fatalf("expected ErrParse, got %v", err)
	}
}

// Round-trip: parsing a canonical string form of a produced list returns it.
func TestParseIntListLiteral_RoundTrip(t *testing.T) {
	for _, l := range [][]int{{0}, {0, 1, 2}, {5, 3, 9}} {
		s := "["
		for i, n := range l {
			if i > 0 {
				s += ", "
			}
			s += itoa(n)
		}
		s += "]"
		got, err := ParseIntListLiteral(s)
		if err != nil {
			t.Fatalf("err: %v", err)
		}
		if !reflect.DeepEqual(got, l) {
			t.Fatalf("round trip mismatch: got %v want %v", got, l)
		}
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
