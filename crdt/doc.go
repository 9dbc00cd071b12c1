/*
Package crdt implements a Compact Dotted Version Vector Set (CDVVSet), the
CmRDT the store's replication is built on. A Clock is the value stored for
one key: a per-replica causal history (Entries) plus the sibling values
currently live for that key (Values and Anonymous).

CAUTION! Consider these two requirements:
* For correct operation and results we expect the broadcast communication to all
  other replicas to be reliable and causally-ordered, as provided by package comm.
* Access to the functions this package provides is expected to be synchronized
  explicitly by some outside measures, e.g. by wrapping calls to this package
  with a mutex lock if concurrent access is possible. This package does not(!)
  synchronize access by itself; every function here is a pure, total mapping
  from input Clocks to a freshly allocated output Clock.

This is a practical derivation of the dotted version vector set algebra
described by Preguiça, Baquero, Almeida, Fonte and Gonçalves.
*/
package crdt
