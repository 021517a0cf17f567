// Package mem provides the backing memory for packed slabs.
//
// # Aligned Allocation
//
// Heap buffers are 64-byte aligned so a lane group of any supported width
// (up to AVX-512) never straddles a cache line boundary.
//
// # Off-Heap Allocation
//
// OffHeap obtains buffers from anonymous private mappings. The Go garbage
// collector never scans or moves them and they are returned to the OS
// explicitly by Free. Slab pools free a buffer only after every rebase
// listener has moved its cached pointers to the replacement buffer.
package mem
