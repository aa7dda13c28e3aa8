package models

const (
	MinPriority = 1
	MaxPriority = 5
)

const (
	// DefaultGeneratedIDPrefix prefixes ids of synthetic bookings.
	DefaultGeneratedIDPrefix = "lab"

	// DefaultHorizonDays is how many days ahead of today the generator fills.
	DefaultHorizonDays = 30

	// DefaultRetryFactor bounds generator submissions to n * factor.
	DefaultRetryFactor = 5

	// DefaultTokenTTLMinutes is the validity of issued access tokens.
	DefaultTokenTTLMinutes = 5 * 60

	// LoginAttempts within LoginWindow seconds before login is throttled.
	LoginAttempts = 10
	LoginWindow   = 60

	// EventQueueSize is the capacity of the event forwarder queue.
	EventQueueSize = 1000
)

var DefaultRooms = []string{
	"A101", "A102", "B201", "B202", "C301",
	"C302", "D401", "D402", "E501", "E502",
}

var DefaultHours = []int{7, 9, 11, 13, 15, 17, 19}
