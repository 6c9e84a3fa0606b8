package instances

import "encoding/json"

// InstanceType discriminates nodes from edges.
type InstanceType string

const (
	TypeNode InstanceType = "node"
	TypeEdge InstanceType = "edge"
)

// Valid reports whether t is a known instance type.
func (t InstanceType) Valid() bool {
	return t == TypeNode || t == TypeEdge
}

// InstanceID identifies a node or edge.
type InstanceID struct {
	InstanceType InstanceType `json:"instanceType"`
	Space        string       `json:"space"`
	ExternalID   string       `json:"externalId"`
}

// NodeID returns the id of a node.
func NodeID(space, externalID string) InstanceID {
	return InstanceID{InstanceType: TypeNode, Space: space, ExternalID: externalID}
}

// EdgeID returns the id of an edge.
func EdgeID(space, externalID string) InstanceID {
	return InstanceID{InstanceType: TypeEdge, Space: space, ExternalID: externalID}
}

// String formats the id as type:space/externalId.
func (id InstanceID) String() string {
	return string(id.InstanceType) + ":" + id.Space + "/" + id.ExternalID
}

// DirectRelation points at a node.
type DirectRelation struct {
	Space      string `json:"space"`
	ExternalID string `json:"externalId"`
}

// ViewID identifies a view version. It is always sent with "type": "view".
type ViewID struct {
	Space      string `json:"space"`
	ExternalID string `json:"externalId"`
	Version    string `json:"version"`
}

// MarshalJSON adds the source type discriminator.
func (v ViewID) MarshalJSON() ([]byte, error) {
	type plain ViewID
	return json.Marshal(struct {
		Type string `json:"type"`
		plain
	}{Type: "view", plain: plain(v)})
}

// SourceSelector selects the properties of one view in reads.
type SourceSelector struct {
	Source ViewID `json:"source"`
}

// SourceData carries the properties written through one view.
type SourceData struct {
	Source     ViewID                     `json:"source"`
	Properties map[string]json.RawMessage `json:"properties"`
}

// InstanceApply is a node or edge to write.
type InstanceApply struct {
	InstanceType    InstanceType `json:"instanceType"`
	Space           string       `json:"space"`
	ExternalID      string       `json:"externalId"`
	ExistingVersion *int         `json:"existingVersion,omitempty"`
	Sources         []SourceData `json:"sources,omitempty"`

	// Edge only.
	Type      *DirectRelation `json:"type,omitempty"`
	StartNode *DirectRelation `json:"startNode,omitempty"`
	EndNode   *DirectRelation `json:"endNode,omitempty"`
}

// ID returns the identifier of the instance.
func (a InstanceApply) ID() InstanceID {
	return InstanceID{InstanceType: a.InstanceType, Space: a.Space, ExternalID: a.ExternalID}
}

// InstanceResult is the per-item result of a write.
type InstanceResult struct {
	InstanceType    InstanceType `json:"instanceType"`
	Space           string       `json:"space"`
	ExternalID      string       `json:"externalId"`
	Version         int          `json:"version"`
	WasModified     bool         `json:"wasModified"`
	CreatedTime     int64        `json:"createdTime"`
	LastUpdatedTime int64        `json:"lastUpdatedTime"`
}

// ID returns the identifier of the written instance.
func (r InstanceResult) ID() InstanceID {
	return InstanceID{InstanceType: r.InstanceType, Space: r.Space, ExternalID: r.ExternalID}
}

// Instance is a node or edge as read from the API.
type Instance struct {
	InstanceType    InstanceType `json:"instanceType"`
	Space           string       `json:"space"`
	ExternalID      string       `json:"externalId"`
	Version         int          `json:"version"`
	CreatedTime     int64        `json:"createdTime"`
	LastUpdatedTime int64        `json:"lastUpdatedTime"`
	DeletedTime     *int64       `json:"deletedTime,omitempty"`

	// Properties is keyed by space; the per-view property maps below it are
	// left undecoded.
	Properties map[string]json.RawMessage `json:"properties,omitempty"`

	Type      *DirectRelation `json:"type,omitempty"`
	StartNode *DirectRelation `json:"startNode,omitempty"`
	EndNode   *DirectRelation `json:"endNode,omitempty"`
}

// ID returns the identifier of the instance.
func (i Instance) ID() InstanceID {
	return InstanceID{InstanceType: i.InstanceType, Space: i.Space, ExternalID: i.ExternalID}
}

// WriteMode controls how Upsert treats existing instances.
type WriteMode string

const (
	// ModeUpsert creates or patches instances.
	ModeUpsert WriteMode = "upsert"

	// ModeUpdate only updates instances that already exist. Not supported.
	ModeUpdate WriteMode = "update"
)

// UpsertOptions configures Upsert.
type UpsertOptions struct {
	// Mode defaults to ModeUpsert.
	Mode WriteMode

	// Replace overwrites all properties instead of patching them.
	Replace bool

	SkipOnVersionConflict bool

	// AutoCreateDirectRelations defaults to the server behavior when nil.
	AutoCreateDirectRelations *bool
}

// ListRequest describes a listing. Filter and Sort are passed through as is.
type ListRequest struct {
	InstanceType  InstanceType     `json:"instanceType,omitempty"`
	Sources       []SourceSelector `json:"sources,omitempty"`
	Filter        json.RawMessage  `json:"filter,omitempty"`
	Sort          json.RawMessage  `json:"sort,omitempty"`
	IncludeTyping bool             `json:"includeTyping,omitempty"`
}

// SearchRequest is a free-text search over one view. Limit must be in [1, 1000].
type SearchRequest struct {
	View         ViewID          `json:"view"`
	Query        string          `json:"query,omitempty"`
	InstanceType InstanceType    `json:"instanceType,omitempty"`
	Properties   []string        `json:"properties,omitempty"`
	Filter       json.RawMessage `json:"filter,omitempty"`
	Limit        int             `json:"limit"`
}

// AggregateRequest computes aggregates over one view. Limit must be in [1, 1000].
type AggregateRequest struct {
	View         ViewID            `json:"view"`
	InstanceType InstanceType      `json:"instanceType,omitempty"`
	Query        string            `json:"query,omitempty"`
	Properties   []string          `json:"properties,omitempty"`
	Filter       json.RawMessage   `json:"filter,omitempty"`
	Aggregates   []json.RawMessage `json:"aggregates,omitempty"`
	GroupBy      []string          `json:"groupBy,omitempty"`
	Limit        int               `json:"limit"`
}

// AggregateItem is one aggregate group.
type AggregateItem struct {
	InstanceType InstanceType               `json:"instanceType"`
	Group        map[string]json.RawMessage `json:"group,omitempty"`
	Aggregates   []json.RawMessage          `json:"aggregates"`
}
