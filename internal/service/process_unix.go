//go:build !windows

package service

import (
	"os"
	"syscall"
)

// processAlive probes existence via signal 0, which the kernel
// validates without delivering an actual signal (spec.md §4.9,
// grounded on original_source/src/service.rs::is_process_running, which
// uses the sysinfo crate's process table scan for the same check).
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// terminateGraceful sends SIGTERM, matching
// original_source/src/service.rs::stop's Unix branch and the teacher's
// runStop SIGTERM pattern.
func terminateGraceful(pid int) {
	if proc, err := os.FindProcess(pid); err == nil {
		proc.Signal(syscall.SIGTERM)
	}
}

// terminateForce sends SIGKILL after the graceful window elapses.
func terminateForce(pid int) {
	if proc, err := os.FindProcess(pid); err == nil {
		proc.Signal(syscall.SIGKILL)
	}
}
