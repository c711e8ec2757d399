// Package main provides the entry point for the salvage CLI.
//
// Salvage is a signature-based file recovery tool. It scans directory
// trees or raw disk images for known format headers and carves deleted
// or orphaned files back out, verifying and cataloging every artifact.
//
// Usage:
//
//	salvage scan <directory>
//	salvage carve <image-file>
//
// See --help for all available options.
package main

// main is the entry point for salvage.
func main() {
	Execute()
}
