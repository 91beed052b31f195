// Package queue implements the task queue family: a pluggable contract
// (push/pop/size/contains/clear) with FIFO, LIFO and priority built-in
// implementations. A caller-supplied type satisfying Queue is an
// accepted extension point, not a compatibility boundary.
package queue
