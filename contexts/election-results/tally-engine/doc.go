// Package tallyengine implements the election tally engine inside the
// election-results context.
//
// The module accepts polling-station result forms, checks their ballot
// arithmetic and scores them for statistical anomalies, routes them through
// a reviewer state machine and rolls verified results up the electoral
// hierarchy (station, ward, constituency, county, national). Review
// transitions write outbox events in the same transaction; workers relay
// them to the bus and evict cached aggregates.
package tallyengine
