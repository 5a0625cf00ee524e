// Command observerd runs the ArNS gateway observer: a one-shot report
// generator (`report`) or a long-lived epoch-polling daemon (`run`).
package main

import (
	"fmt"
	"os"

	"github.com/ar-io/observer-core/coremain"
)

func main() {
	if err := coremain.Run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
