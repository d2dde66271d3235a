// Package crawler implements the three-tier newsletter traversal: archives
// list newsletter issues, issues link to articles. It holds the entity types,
// the ensure-or-create layer over a Store, and the Engine that walks seeds
// under a global request budget and a per-archive article quota.
package crawler
