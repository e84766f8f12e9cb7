//go:build !unix

package approval

// lockFile is a no-op where flock is unavailable; Service.mu still
// serializes updates within one process.
func lockFile(string) (func(), error) {
	return func() {}, nil
}
