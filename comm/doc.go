/*
Package comm implements network communication capabilities that are reliable and
causally-ordered among multiple store replicas. A vector clock per sender is used
to ensure causality between replicas: a sync message is only applied once every
message that causally precedes it has already been applied. Currently, sending is
blocking on a replica that fails to deliver an earlier message. The message format
and its parser transform a received sync message back into a struct carrying the
marshalled crdt.ClockOp payload meant for the receiving replica's store.
*/
package comm
