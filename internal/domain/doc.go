// Package domain defines the entities lodestone tracks as its source of
// truth, plus the schema registry the design engine uses to address them.
//
// Two kinds of entities live here:
//
//   - Inventory records: statuses, locations, VLANs, prefixes, devices and
//     user-defined custom relationships between entity types. These are the
//     things design documents create and update.
//
//   - Design lifecycle records: designs, deployments and their change sets.
//     These track which deployment owns which inventory records so that a
//     deployment can later be decommissioned.
//
// Records are deliberately schemaless at the Go level (a Record is a field
// map). The Schema registry supplies the typing: which fields exist, which
// are references to other models, and how a model is addressed from a design
// document ("prefixes"), a query ("ipam.prefix") or a fully qualified check
// path ("lodestone.ipam.models.Prefix").
package domain
