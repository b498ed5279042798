/*
Package types defines Theus's core data model: the shape of values that can
live in a context tree, the dotted/bracketed paths used to address them, the
per-path capability mask, and the process contract that scopes a function's
reads and writes.

None of the types here know about transactions, guards, or the store — they
are the vocabulary every other package shares.
*/
package types
