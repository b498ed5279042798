// Package zones resolves a path to its semantic zone and derives the
// capability mask a guard must enforce there: prefix rules first, then a
// registered namespace policy, then an explicit physics-override annotation,
// with the CONSTANT ceiling always winning last.
package zones
