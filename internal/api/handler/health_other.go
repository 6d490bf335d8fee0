//go:build !linux && !darwin

package handler

// getCPUUsage is not implemented on this platform and returns 0.
func getCPUUsage() float64 {
	return 0
}
