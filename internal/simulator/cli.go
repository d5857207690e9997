package simulator

import "os"

// ShowHelp prints usage information for the sensor simulator.
func ShowHelp() {
	os.Stdout.WriteString(`Swish Sensor Simulator
======================

Publishes scripted shot attempts (early, perfect and late, scored or not,
with orphan noise) to the sensor topics and optionally checks the stored
shots through the HTTP API.

Usage:
  go run ./cmd/sensor-sim [options]

Options:
  -broker string
        MQTT broker address (default "localhost:1883")
  -shots int
        Number of attempts to publish (default 20)
  -gap duration
        Quiet time between attempts (default 300ms)
  -scored float
        Share of attempts followed by a score (default 0.6)
  -noise float
        Probability of an orphan event before an attempt (default 0.1)
  -seed uint
        Random seed, 0 for a clock-based seed
  -verify string
        Service base URL to verify against, empty to skip (e.g. http://localhost:9080)
  -timeout duration
        HTTP request timeout (default 10s)
  -verbose
        Log every published event
  -help
        Show this help message

Timing calibration and topics are read from the service configuration
(SWISH_CONFIG file and SWISH_ environment variables).

Examples:
  go run ./cmd/sensor-sim -shots 50 -verify http://localhost:9080
  go run ./cmd/sensor-sim -noise 0.5 -scored 1 -verbose
`)
}
