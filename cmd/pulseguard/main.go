// Command pulseguard decrypts a sensor's sealed heart-rate frames and flags
// outliers once a baseline has been recorded.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
