// Command wdpool manages pooled WebDriver sessions.
package main

import (
	"os"

	"github.com/Iron-Ham/wdpool/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
