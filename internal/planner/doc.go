// Package planner turns file records, duplicate groups and policy into a
// deterministic, ordered list of actions.
//
// Planning performs no mutation and no metadata resolution of its own: it
// gates resolver and art provider proposals by the configured thresholds,
// renders layout targets from tags, resolves destination collisions and
// sorts the result by kind priority and source path. Planning the same
// records with the same settings always yields byte-identical artifacts.
package planner
