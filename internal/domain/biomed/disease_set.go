package biomed

import (
	"encoding/json"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeDiseaseName returns the display form of a disease name: Unicode
// NFKC, surrounding whitespace trimmed, inner whitespace runs collapsed to a
// single space. Case is preserved.
func NormalizeDiseaseName(name string) string {
	return strings.Join(strings.Fields(norm.NFKC.String(name)), " ")
}

// DiseaseKey returns the de-duplication key of a disease name: the display
// form lower-cased. No stemming is applied.
func DiseaseKey(name string) string {
	return strings.ToLower(NormalizeDiseaseName(name))
}

// DiseaseSet is a set of unique disease names. Two names with the same
// DiseaseKey are the same member; the first-seen display form is kept.
// Names are reported in first-insertion order. The zero value is an empty set.
type DiseaseSet struct {
	names []string
	index map[string]int
}

// NewDiseaseSet builds a set from names, skipping blanks and duplicates.
func NewDiseaseSet(names ...string) DiseaseSet {
	var s DiseaseSet
	for _, n := range names {
		s.insert(n)
	}
	return s
}

// Add inserts name and reports whether it was new. Blank names are ignored.
// Copies of a set share storage, so a new member is added to a private copy
// and other copies never observe it.
func (s *DiseaseSet) Add(name string) bool {
	if NormalizeDiseaseName(name) == "" || s.Contains(name) {
		return false
	}
	*s = s.Clone()
	return s.insert(name)
}

// insert adds name in place. Only sets that own their storage may call it.
func (s *DiseaseSet) insert(name string) bool {
	display := NormalizeDiseaseName(name)
	if display == "" {
		return false
	}
	key := strings.ToLower(display)
	if s.index == nil {
		s.index = make(map[string]int)
	}
	if _, ok := s.index[key]; ok {
		return false
	}
	s.index[key] = len(s.names)
	s.names = append(s.names, display)
	return true
}

// Len returns the number of members.
func (s DiseaseSet) Len() int { return len(s.names) }

// IsEmpty reports whether the set has no members.
func (s DiseaseSet) IsEmpty() bool { return len(s.names) == 0 }

// Names returns a copy of the members in insertion order.
func (s DiseaseSet) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Contains reports whether a name equivalent to name is a member.
func (s DiseaseSet) Contains(name string) bool {
	_, ok := s.Lookup(name)
	return ok
}

// Lookup returns the member spelling equivalent to name.
func (s DiseaseSet) Lookup(name string) (string, bool) {
	if s.index == nil {
		return "", false
	}
	i, ok := s.index[DiseaseKey(name)]
	if !ok {
		return "", false
	}
	return s.names[i], true
}

// Clone returns an independent copy.
func (s DiseaseSet) Clone() DiseaseSet {
	return NewDiseaseSet(s.names...)
}

// Equal reports whether both sets hold the same members in the same order.
func (s DiseaseSet) Equal(o DiseaseSet) bool {
	if len(s.names) != len(o.names) {
		return false
	}
	for i := range s.names {
		if s.names[i] != o.names[i] {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the set as an ordered array of names.
func (s DiseaseSet) MarshalJSON() ([]byte, error) {
	if s.names == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.names)
}

// UnmarshalJSON decodes an array of names, re-applying de-duplication.
func (s *DiseaseSet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	*s = NewDiseaseSet(names...)
	return nil
}
