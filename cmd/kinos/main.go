// Kinos - EBS Snapshot Lifecycle Manager
// Snapshot. Prune. Report.
package main

func main() {
	Execute()
}
