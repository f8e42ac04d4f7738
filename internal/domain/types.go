package domain

// Ticket is an immutable snapshot of a tracker issue. Optional fields are
// pointers; absence is an explicit nil check, never a reflective probe.
type Ticket struct {
    Key                string
    Summary            string
    Description        string
    Type               string
    Status             string
    Parent             *ParentRef
    Links              []IssueLink
    AcceptanceCriteria *string
}

type ParentRef struct {
    Key     string
    Summary string
}

type IssueLink struct {
    Relation string
    Key      string
}

// Chunk source tags carried into the vector index.
const (
    SourceDescription        = "description"
    SourceAcceptanceCriteria = "acceptance_criteria"
    SourceDefinitionOfDone   = "definition_of_done"
)

// Chunk is a bounded-size text segment derived from a ticket field or a
// reference document. TicketKey is empty for reference documents.
type Chunk struct {
    Text      string
    Source    string
    TicketKey string
}

type IndexEntry struct {
    Chunk
    Embedding []float64
}

type ScoredChunk struct {
    Chunk
    Score float64
}

// Ticket categories offered to the classification stage. Model output outside
// this set is kept verbatim (single attempt, no re-prompting).
var Categories = []string{
    "General feature development",
    "Release (ROM/FW)",
    "Bug Fix",
    "Verification and Bring-up",
    "Tool Update",
    "Investigation/Concept Work",
    "RMA",
}

// Recommendation is the per-ticket analysis result. On failure Output carries
// an error string and Err the underlying cause; a batch never aborts on it.
type Recommendation struct {
    TicketKey   string   `json:"ticket_key"`
    Category    string   `json:"category,omitempty"`
    Output      string   `json:"output"`
    ContextKeys []string `json:"context_keys,omitempty"`
    Err         error    `json:"-"`
}
