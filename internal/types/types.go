// Package types defines core data structures for the beads issue graph engine.
package types

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Issue represents a trackable work item.
type Issue struct {
	ID          string `json:"id"`
	ContentHash string `json:"-"` // never serialized in the textual mirror

	Title              string `json:"title"`
	Description        string `json:"description,omitempty"`
	Design             string `json:"design,omitempty"`
	AcceptanceCriteria string `json:"acceptance_criteria,omitempty"`
	Notes              string `json:"notes,omitempty"`

	Status           Status    `json:"status,omitempty"`
	Priority         int       `json:"priority"`
	IssueType        IssueType `json:"issue_type,omitempty"`
	Assignee         string    `json:"assignee,omitempty"`
	Owner            string    `json:"owner,omitempty"`
	CreatedBy        string    `json:"created_by,omitempty"`
	EstimatedMinutes *int      `json:"estimated_minutes,omitempty"`

	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	ClosedAt       *time.Time `json:"closed_at,omitempty"`
	CloseReason    string     `json:"close_reason,omitempty"`
	ClosedBySession string    `json:"closed_by_session,omitempty"`
	DueAt          *time.Time `json:"due_at,omitempty"`
	DeferUntil     *time.Time `json:"defer_until,omitempty"`

	ExternalRef  *string `json:"external_ref,omitempty"`
	SourceSystem string  `json:"source_system,omitempty"`

	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
	DeletedBy    string     `json:"deleted_by,omitempty"`
	DeleteReason string     `json:"delete_reason,omitempty"`
	OriginalKind string     `json:"original_type,omitempty"`

	Pinned     bool `json:"pinned,omitempty"`
	IsTemplate bool `json:"is_template,omitempty"`
	Ephemeral  bool `json:"ephemeral,omitempty"`

	// Populated only for export/import and deep reads; never columns on a join.
	Labels       []string      `json:"labels,omitempty"`
	Dependencies []*Dependency `json:"dependencies,omitempty"`
	Comments     []*Comment    `json:"comments,omitempty"`
}

// ComputeContentHash computes the canonical content hash used for collision
// detection and detecting no-op re-imports (section 4.1). labels and deps
// are sorted before hashing so field order never affects the result; deps
// are reduced to "depends_on_id|type|metadata" triples. Both may be nil.
func (i *Issue) ComputeContentHash(labels []string, deps []*Dependency) string {
	h := sha256.New()
	write := func(s string) {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}

	write(i.Title)
	write(i.Description)
	write(i.Design)
	write(i.AcceptanceCriteria)
	write(i.Notes)
	write(string(i.Status))
	write(fmt.Sprintf("%d", i.Priority))
	write(string(i.IssueType))
	write(i.Assignee)
	write(i.Owner)
	write(i.CreatedBy)
	if i.ExternalRef != nil {
		write(*i.ExternalRef)
	} else {
		write("")
	}
	write(i.SourceSystem)
	write(i.CloseReason)
	write(i.ClosedBySession)
	write(i.DeletedBy)
	write(i.DeleteReason)
	write(i.OriginalKind)

	marker := 0
	if i.Pinned {
		marker |= 1
	}
	if i.IsTemplate {
		marker |= 2
	}
	if i.Ephemeral {
		marker |= 4
	}
	write(fmt.Sprintf("%d", marker))

	sortedLabels := append([]string(nil), labels...)
	sort.Strings(sortedLabels)
	write(strings.Join(sortedLabels, ","))

	depTriples := make([]string, 0, len(deps))
	for _, d := range deps {
		meta := ""
		if d.Metadata != nil {
			meta = *d.Metadata
		}
		depTriples = append(depTriples, fmt.Sprintf("%s|%s|%s", d.DependsOnID, d.Type, meta))
	}
	sort.Strings(depTriples)
	write(strings.Join(depTriples, ","))

	return fmt.Sprintf("%x", h.Sum(nil))
}

// Validate checks the issue against the invariants of section 3.2.
func (i *Issue) Validate() error {
	trimmed := strings.TrimSpace(i.Title)
	if len(trimmed) == 0 {
		return fmt.Errorf("title is required")
	}
	if len(trimmed) > 500 {
		return fmt.Errorf("title must be 500 characters or less (got %d)", len(trimmed))
	}
	if i.Priority < 0 || i.Priority > 4 {
		return fmt.Errorf("priority must be between 0 and 4 (got %d)", i.Priority)
	}
	if i.EstimatedMinutes != nil && *i.EstimatedMinutes < 0 {
		return fmt.Errorf("estimated_minutes cannot be negative")
	}

	// Invariant 1: closed-at.
	if i.Status == StatusTombstone {
		if i.DeletedAt == nil {
			return fmt.Errorf("tombstone issues must have deleted_at set")
		}
		if i.OriginalKind == "" {
			return fmt.Errorf("tombstone issues must preserve original_kind")
		}
	} else {
		if i.Status == StatusClosed && i.ClosedAt == nil {
			return fmt.Errorf("closed issues must have closed_at timestamp")
		}
		if i.Status != StatusClosed && i.ClosedAt != nil {
			return fmt.Errorf("non-closed issues cannot have closed_at timestamp")
		}
	}

	if i.ExternalRef != nil && strings.TrimSpace(*i.ExternalRef) == "" {
		return fmt.Errorf("external_ref, if present, cannot be empty")
	}

	return nil
}

// Status represents the workflow state of an issue. The built-in values below
// are recognized everywhere; a workspace may declare additional custom
// statuses (section 9, "Dynamic kinds") which round-trip unmodified.
type Status string

// Built-in status values.
const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusBlocked    Status = "blocked"
	StatusDeferred   Status = "deferred"
	StatusClosed     Status = "closed"
	StatusTombstone  Status = "tombstone"
	StatusPinned     Status = "pinned"
)

// IsTerminal reports whether the status is one that satisfies a "blocks" dependency.
func (s Status) IsTerminal() bool {
	return s == StatusClosed || s == StatusTombstone
}

// IsActive reports whether the status counts as open work for readiness purposes.
func (s Status) IsActive() bool {
	return s == StatusOpen || s == StatusInProgress
}

// IssueType (a.k.a. "kind" in the spec text) categorizes the kind of work.
// Like Status, this is an open string set: built-ins are listed, but a
// workspace-declared custom kind must round-trip as-is.
type IssueType string

// Built-in kind values.
const (
	TypeTask     IssueType = "task"
	TypeBug      IssueType = "bug"
	TypeFeature  IssueType = "feature"
	TypeEpic     IssueType = "epic"
	TypeChore    IssueType = "chore"
	TypeDocs     IssueType = "docs"
	TypeQuestion IssueType = "question"
)

// Dependency represents a directed edge between two issues.
type Dependency struct {
	IssueID     string         `json:"issue_id"`
	DependsOnID string         `json:"depends_on_id"`
	Type        DependencyType `json:"type"`
	Metadata    *string        `json:"metadata,omitempty"`
	ThreadID    *string        `json:"thread_id,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	CreatedBy   string         `json:"created_by,omitempty"`
}

// DependencyType categorizes the relationship an edge represents.
type DependencyType string

// Blocking-family types: these participate in cycle detection and the
// blocked-work materialization (section 4.4).
const (
	DepBlocks             DependencyType = "blocks"
	DepParentChild        DependencyType = "parent-child"
	DepConditionalBlocks  DependencyType = "conditional-blocks"
	DepWaitsFor           DependencyType = "waits-for"
)

// Informational types: excluded from blocking and cycle checks.
const (
	DepRelated        DependencyType = "related"
	DepDiscoveredFrom DependencyType = "discovered-from"
	DepRepliesTo      DependencyType = "replies-to"
	DepRelatesTo      DependencyType = "relates-to"
	DepDuplicates     DependencyType = "duplicates"
	DepSupersedes     DependencyType = "supersedes"
	DepCausedBy       DependencyType = "caused-by"
)

// IsValid reports whether d is one of the dependency types named in section 6.
func (d DependencyType) IsValid() bool {
	switch d {
	case DepBlocks, DepParentChild, DepConditionalBlocks, DepWaitsFor,
		DepRelated, DepDiscoveredFrom, DepRepliesTo, DepRelatesTo,
		DepDuplicates, DepSupersedes, DepCausedBy:
		return true
	}
	return false
}

// IsBlockingFamily reports whether d participates in cycle detection and the
// blocked-work cache (section 4.4's "blocking" subgraph, invariant 7).
func (d DependencyType) IsBlockingFamily() bool {
	switch d {
	case DepBlocks, DepParentChild, DepConditionalBlocks, DepWaitsFor:
		return true
	}
	return false
}

// ExternalSentinelPrefix is the leading literal of a polymorphic
// external-project dependency target, e.g. "external:myproj:build".
const ExternalSentinelPrefix = "external:"

// IsExternalSentinel reports whether id has the shape external:<project>:<capability>.
func IsExternalSentinel(id string) bool {
	if !strings.HasPrefix(id, ExternalSentinelPrefix) {
		return false
	}
	rest := strings.TrimPrefix(id, ExternalSentinelPrefix)
	parts := strings.SplitN(rest, ":", 2)
	return len(parts) == 2 && parts[0] != "" && parts[1] != ""
}

// ParseExternalSentinel splits an external sentinel into project and capability.
func ParseExternalSentinel(id string) (project, capability string, ok bool) {
	if !IsExternalSentinel(id) {
		return "", "", false
	}
	rest := strings.TrimPrefix(id, ExternalSentinelPrefix)
	parts := strings.SplitN(rest, ":", 2)
	return parts[0], parts[1], true
}

// ProvidesLabel returns the label convention used to resolve a capability
// within the project that exposes it.
func ProvidesLabel(capability string) string {
	return "provides:" + capability
}

// ReservedLabelPrefix marks labels that may only be set by a dedicated
// capability-publishing operation, never through the ordinary AddLabel path.
const ReservedLabelPrefix = "provides:"

// Label represents a tag on an issue.
type Label struct {
	IssueID string `json:"issue_id"`
	Label   string `json:"label"`
}

// Comment represents an append-only remark on an issue.
type Comment struct {
	ID        int64     `json:"id"`
	IssueID   string    `json:"issue_id"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Event is an immutable audit-trail entry.
type Event struct {
	ID        int64     `json:"id"`
	IssueID   string    `json:"issue_id"`
	EventType EventType `json:"event_type"`
	Actor     string    `json:"actor"`
	OldValue  *string   `json:"old_value,omitempty"`
	NewValue  *string   `json:"new_value,omitempty"`
	Comment   *string   `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// EventType categorizes audit-trail events.
type EventType string

// Event type constants.
const (
	EventCreated           EventType = "created"
	EventUpdated           EventType = "updated"
	EventStatusChanged     EventType = "status_changed"
	EventCommented         EventType = "commented"
	EventClosed            EventType = "closed"
	EventReopened          EventType = "reopened"
	EventDeleted           EventType = "deleted"
	EventRestored          EventType = "restored"
	EventDependencyAdded   EventType = "dependency_added"
	EventDependencyRemoved EventType = "dependency_removed"
	EventLabelAdded        EventType = "label_added"
	EventLabelRemoved      EventType = "label_removed"
	EventRenamed           EventType = "renamed"
)

// BlockedIssue extends Issue with blocking information for GetBlockedIssues.
type BlockedIssue struct {
	Issue
	BlockedByCount int      `json:"blocked_by_count"`
	BlockedBy      []string `json:"blocked_by"`
}

// DependencyEdge extends Issue with the type of the edge connecting it to the
// issue GetDependenciesWithMetadata/GetDependentsWithMetadata were queried for.
type DependencyEdge struct {
	Issue
	DependencyType DependencyType `json:"dependency_type"`
}

// TreeDirection selects which edges a dependency-tree traversal follows.
type TreeDirection string

// Tree traversal directions (section 4.4).
const (
	TreeDown TreeDirection = "down" // follows depends_on_id
	TreeUp   TreeDirection = "up"   // follows reverse edges
	TreeBoth TreeDirection = "both"
)

// TreeNode represents one node produced by a dependency-tree traversal.
type TreeNode struct {
	Issue
	Depth     int    `json:"depth"`
	ParentID  string `json:"parent_id,omitempty"`
	Truncated bool   `json:"truncated"`
	// External is set for synthesized leaf nodes representing an
	// unresolved or resolved external sentinel target (section 4.4).
	External bool `json:"external,omitempty"`
}

// Statistics provides aggregate metrics over the store.
type Statistics struct {
	TotalIssues             int     `json:"total_issues"`
	OpenIssues              int     `json:"open_issues"`
	InProgressIssues        int     `json:"in_progress_issues"`
	ClosedIssues            int     `json:"closed_issues"`
	BlockedIssues           int     `json:"blocked_issues"`
	ReadyIssues             int     `json:"ready_issues"`
	TombstoneIssues         int     `json:"tombstone_issues"`
	EpicsEligibleForClosure int     `json:"epics_eligible_for_closure"`
	AverageLeadTime         float64 `json:"average_lead_time_hours"`
}

// IssueFilter narrows an issue query.
type IssueFilter struct {
	Status      *Status
	Priority    *int
	IssueType   *IssueType
	Assignee    *string
	Labels      []string // AND semantics: issue must have ALL these labels
	LabelsAny   []string // OR semantics: issue must have AT LEAST ONE of these labels
	TitleSearch string
	IDs         []string // filter by specific issue IDs
	IncludeTombstones bool
	Limit       int
}

// SortPolicy determines how ready work is ordered (section 4.4).
type SortPolicy string

// Sort policy constants.
const (
	// SortPolicyHybrid (default): partition by priority tier 0..1 vs 2..4;
	// within a tier, order by created_at ascending.
	SortPolicyHybrid SortPolicy = "hybrid"
	// SortPolicyPriority: by priority ascending, then created_at ascending.
	SortPolicyPriority SortPolicy = "priority"
	// SortPolicyOldest: by created_at ascending only.
	SortPolicyOldest SortPolicy = "oldest"
)

// IsValid reports whether s is a recognized sort policy (empty means "use default").
func (s SortPolicy) IsValid() bool {
	switch s {
	case SortPolicyHybrid, SortPolicyPriority, SortPolicyOldest, "":
		return true
	}
	return false
}

// WorkFilter narrows a ready-work query.
type WorkFilter struct {
	Status     Status
	Priority   *int
	Assignee   *string
	Limit      int
	SortPolicy SortPolicy
}

// StaleFilter narrows a staleness query (issues untouched since a cutoff).
type StaleFilter struct {
	OlderThan time.Time
	Status    *Status
	Limit     int
}

// EpicStatus reports an epic's completion progress.
type EpicStatus struct {
	Epic             *Issue `json:"epic"`
	TotalChildren     int    `json:"total_children"`
	ClosedChildren    int    `json:"closed_children"`
	EligibleForClose  bool   `json:"eligible_for_close"`
}

// DependencyCounts summarizes how many dependencies/dependents an issue has,
// across all dependency types.
type DependencyCounts struct {
	DependencyCount int
	DependentCount  int
}

// OrphanHandling selects how import treats a parent-child child whose parent
// is missing locally (section 4.7).
type OrphanHandling string

// Orphan handling policies.
const (
	OrphanStrict    OrphanHandling = "strict"
	OrphanSkip      OrphanHandling = "skip"
	OrphanAllow     OrphanHandling = "allow"
	OrphanResurrect OrphanHandling = "resurrect"
)
