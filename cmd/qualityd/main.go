// Command qualityd monitors WebRTC connection quality for telemedicine
// sessions and adapts their video constraints.
package main

import (
	"os"
)

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
