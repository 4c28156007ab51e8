package domain

// Canonical model paths. Handy for store queries and event payloads.
const (
	ModelStatus                  = "extras.status"
	ModelLocation                = "dcim.location"
	ModelDevice                  = "dcim.device"
	ModelVLAN                    = "ipam.vlan"
	ModelPrefix                  = "ipam.prefix"
	ModelRelationship            = "extras.relationship"
	ModelRelationshipAssociation = "extras.relationshipassociation"
	ModelDesign                  = "design.design"
	ModelDeployment              = "design.deployment"
	ModelChangeSet               = "design.changeset"
	ModelChangeRecord            = "design.changerecord"
)

// DefaultRegistry returns the registry with every lodestone model.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, s := range []*Schema{
		{
			App: "extras", Name: "status", Plural: "statuses",
			Table: "statuses", Verbose: "Status",
			Fields: []Field{
				{Name: "name"},
				{Name: "color"},
				{Name: "description"},
			},
		},
		{
			App: "dcim", Name: "location", Plural: "locations",
			Table: "locations", Verbose: "Location",
			Fields: []Field{
				{Name: "name"},
				{Name: "description"},
				{Name: "parent", Kind: FieldRef, Ref: ModelLocation},
				{Name: "status", Kind: FieldRef, Ref: ModelStatus},
				{Name: "prefixes", Kind: FieldRefList, Ref: ModelPrefix, Via: "location"},
				{Name: "vlans", Kind: FieldRefList, Ref: ModelVLAN, Via: "location"},
				{Name: "devices", Kind: FieldRefList, Ref: ModelDevice, Via: "location"},
			},
		},
		{
			App: "ipam", Name: "vlan", Plural: "vlans",
			Table: "vlans", Verbose: "VLAN",
			Fields: []Field{
				{Name: "vid", Type: "INTEGER"},
				{Name: "name"},
				{Name: "description"},
				{Name: "status", Kind: FieldRef, Ref: ModelStatus},
				{Name: "location", Kind: FieldRef, Ref: ModelLocation},
				{Name: "prefixes", Kind: FieldRefList, Ref: ModelPrefix, Via: "vlan"},
			},
		},
		{
			App: "ipam", Name: "prefix", Plural: "prefixes",
			Table: "prefixes", Verbose: "Prefix",
			Fields: []Field{
				{Name: "prefix"},
				{Name: "description"},
				{Name: "status", Kind: FieldRef, Ref: ModelStatus},
				{Name: "location", Kind: FieldRef, Ref: ModelLocation},
				{Name: "vlan", Kind: FieldRef, Ref: ModelVLAN},
			},
		},
		{
			App: "dcim", Name: "device", Plural: "devices",
			Table: "devices", Verbose: "Device",
			Fields: []Field{
				{Name: "name"},
				{Name: "platform"},
				{Name: "serial"},
				{Name: "primary_ip"},
				{Name: "description"},
				{Name: "status", Kind: FieldRef, Ref: ModelStatus},
				{Name: "location", Kind: FieldRef, Ref: ModelLocation},
				{Name: "discovered", Kind: FieldJSON},
			},
		},
		{
			App: "extras", Name: "relationship", Plural: "custom_relationships",
			Table: "relationships", Verbose: "Relationship",
			Fields: []Field{
				{Name: "key"},
				{Name: "label"},
				{Name: "type"},
				{Name: "source_type"},
				{Name: "destination_type"},
				{Name: "source_label"},
				{Name: "destination_label"},
			},
		},
		{
			App: "extras", Name: "relationshipassociation", Plural: "relationship_associations",
			Table: "relationship_associations", Verbose: "Relationship Association",
			Fields: []Field{
				{Name: "relationship", Kind: FieldRef, Ref: ModelRelationship},
				{Name: "source_type"},
				{Name: "source_id"},
				{Name: "destination_type"},
				{Name: "destination_id"},
			},
		},
		{
			App: "design", Name: "design", Plural: "designs_meta",
			Table: "designs", Internal: true, Verbose: "Design",
			Fields: []Field{
				{Name: "name"},
				{Name: "version"},
				{Name: "description"},
			},
		},
		{
			App: "design", Name: "deployment", Plural: "deployments",
			Table: "deployments", Internal: true, Verbose: "Design Deployment",
			Fields: []Field{
				{Name: "design", Kind: FieldRef, Ref: ModelDesign},
				{Name: "name"},
				{Name: "status"},
				{Name: "version", Type: "INTEGER"},
			},
		},
		{
			App: "design", Name: "changeset", Plural: "change_sets",
			Table: "change_sets", Internal: true, Verbose: "Change Set",
			Fields: []Field{
				{Name: "deployment", Kind: FieldRef, Ref: ModelDeployment},
			},
		},
		{
			App: "design", Name: "changerecord", Plural: "change_records",
			Table: "change_records", Internal: true, Verbose: "Change Record",
			Fields: []Field{
				{Name: "change_set", Kind: FieldRef, Ref: ModelChangeSet},
				{Name: "index", Type: "INTEGER"},
				{Name: "model"},
				{Name: "record_id"},
				{Name: "full_control", Type: "INTEGER"},
				{Name: "added", Kind: FieldJSON},
				{Name: "removed", Kind: FieldJSON},
			},
		},
	} {
		if err := r.Register(s); err != nil {
			// Registration only fails on duplicate definitions, which
			// is a programming error in this file.
			panic(err)
		}
	}
	return r
}

// Default status names seeded on first migration.
var DefaultStatuses = []struct {
	Name  string
	Color string
}{
	{"Active", "4caf50"},
	{"Planned", "00bcd4"},
	{"Reserved", "03a9f4"},
	{"Deprecated", "795548"},
	{"Decommissioned", "9e9e9e"},
}
