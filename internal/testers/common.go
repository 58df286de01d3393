// Package testers implements the protection-relay test drivers: ramping
// pickup/dropoff measurement, IDMT overcurrent curve verification, distance
// (R-X) fault injection, and differential restraint/operate testing.
// Grounded on the core's four tester classes.
package testers

import "time"

const stopPollInterval = 10 * time.Millisecond
const tripPollInterval = time.Millisecond

// waitWithStopCheck sleeps for duration in small increments, returning false
// as soon as stopRequested reports true.
func waitWithStopCheck(duration time.Duration, stopRequested func() bool) bool {
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		if stopRequested() {
			return false
		}
		time.Sleep(stopPollInterval)
	}
	return true
}

// monitorTrip polls tripFlagGetter for a 0->1 transition from its value at
// call time, up to maxDuration. Returns whether a trip was observed and how
// long it took.
func monitorTrip(maxDuration time.Duration, stopRequested func() bool, tripFlagGetter func() bool) (bool, time.Duration) {
	start := time.Now()
	deadline := start.Add(maxDuration)
	initial := tripFlagGetter()

	for time.Now().Before(deadline) {
		if stopRequested() {
			return false, 0
		}
		if current := tripFlagGetter(); !initial && current {
			return true, time.Since(start)
		}
		time.Sleep(tripPollInterval)
	}
	return false, 0
}
