package model

// SourceId identifies one of the closed set of external knowledge sources
// the orchestrator knows how to query. The set is fixed at build time;
// adding a source is a code change, not a configuration change.
type SourceId string

const (
	SourceConfluence   SourceId = "confluence"
	SourceJira         SourceId = "jira"
	SourceSlack        SourceId = "slack"
	SourceGithub       SourceId = "github"
	SourceGoogle       SourceId = "google"
	SourceNotion       SourceId = "notion"
	SourceLinear       SourceId = "linear"
	SourceFigma        SourceId = "figma"
	SourceMicrosoft365 SourceId = "microsoft365"
	SourceDevtools     SourceId = "devtools"
	SourceProductivity SourceId = "productivity"
	SourceWeb          SourceId = "web"
	SourceVectorCache  SourceId = "vector_cache"
)

// AllSources enumerates every known SourceId, in canonical order.
var AllSources = []SourceId{
	SourceVectorCache,
	SourceConfluence,
	SourceJira,
	SourceSlack,
	SourceGithub,
	SourceGoogle,
	SourceNotion,
	SourceLinear,
	SourceFigma,
	SourceMicrosoft365,
	SourceDevtools,
	SourceProductivity,
	SourceWeb,
}

// Valid reports whether id is a member of the closed SourceId enumeration.
func (id SourceId) Valid() bool {
	for _, s := range AllSources {
		if s == id {
			return true
		}
	}
	return false
}
