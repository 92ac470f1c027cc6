package domain

// Work item field names and relation types used by the assembler.
const (
	FieldWorkItemType = "System.WorkItemType"
	FieldTitle        = "System.Title"
	FieldState        = "System.State"

	RelationParent = "System.LinkTypes.Hierarchy-Reverse"
)

// Work item types with special handling.
const (
	TypeTask               = "Task"
	TypeProductBacklogItem = "Product Backlog Item"
	TypePBI                = "PBI"
	TypeUnknown            = "Unknown"
)

// ItemRef references a work item associated with a build.
type ItemRef struct {
	ID  int    `json:"id"`
	URL string `json:"url,omitempty"`
}

// Relation links a work item to another resource.
type Relation struct {
	Rel string `json:"rel"`
	URL string `json:"url"`
}

// Item is a work item as returned upstream with all relations expanded.
type Item struct {
	ID        int               `json:"id"`
	Fields    map[string]string `json:"fields"`
	Relations []Relation        `json:"relations,omitempty"`
	HTMLURL   string            `json:"htmlUrl,omitempty"`
}

// Field returns the named field or fallback when absent or empty.
func (i Item) Field(name, fallback string) string {
	if v, ok := i.Fields[name]; ok && v != "" {
		return v
	}
	return fallback
}

// WorkItem is a node of the assembled backlog item / task forest.
type WorkItem struct {
	ID          int        `json:"id"`
	ParentID    *int       `json:"parentId,omitempty"`
	Type        string     `json:"type"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	URL         string     `json:"url,omitempty"`
	Tasks       []WorkItem `json:"tasks,omitempty"`
}

// CountNodes returns the number of nodes in a forest, nested ones included.
func CountNodes(items []WorkItem) int {
	n := 0
	for _, it := range items {
		n += 1 + CountNodes(it.Tasks)
	}
	return n
}
