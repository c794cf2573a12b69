package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// Provenance identifies the search phase/method that produced a candidate.
type Provenance string

const (
	ProvenanceCategory  Provenance = "category"
	ProvenanceAgency    Provenance = "agency"
	ProvenanceNameMatch Provenance = "name_match"
	ProvenanceRAG       Provenance = "rag"
)

// IsStructural reports whether the provenance came from the immediate
// filter phase rather than semantic retrieval.
func (p Provenance) IsStructural() bool {
	return p != ProvenanceRAG
}

// GrantCandidate is a single recommendation surfaced by either search phase.
// Within one response grant IDs are unique; a RAG candidate whose ID already
// appeared in phase 1 is dropped, never merged.
type GrantCandidate struct {
	GrantID       string     `json:"grantId"`
	Name          string     `json:"grantName"`
	Score         int        `json:"matchScore"`
	MatchReason   string     `json:"matchReason"`
	Provenance    Provenance `json:"matchType"`
	FundingAmount string     `json:"fundingAmount,omitempty"`
	Deadline      string     `json:"deadline,omitempty"`
	GrantType     string     `json:"grantType"`
}

// CandidateList stores a candidate slice as a JSON column.
type CandidateList []GrantCandidate

// Value implements the driver.Valuer interface for database serialization.
func (l CandidateList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (l *CandidateList) Scan(value interface{}) error {
	if value == nil {
		*l = CandidateList{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan CandidateList")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, l)
}

// IDs returns the grant IDs of the candidates in order.
func (l CandidateList) IDs() []string {
	ids := make([]string, len(l))
	for i, c := range l {
		ids[i] = c.GrantID
	}
	return ids
}

// FilterSet is the structural filter derived for a request: an explicit
// user preference when supplied, otherwise the classifier's detection.
// Immutable once computed for a given request.
type FilterSet struct {
	Category string `json:"category,omitempty"`
	Agency   string `json:"agency,omitempty"`
}

// HasStructuralFilter reports whether a category or agency filter is active.
func (f FilterSet) HasStructuralFilter() bool {
	return f.Category != "" || f.Agency != ""
}

// IsZero reports whether no filter is set.
func (f FilterSet) IsZero() bool {
	return !f.HasStructuralFilter()
}

// Value implements the driver.Valuer interface for database serialization.
func (f FilterSet) Value() (driver.Value, error) {
	b, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (f *FilterSet) Scan(value interface{}) error {
	if value == nil {
		*f = FilterSet{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan FilterSet")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, f)
}
