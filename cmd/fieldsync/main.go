// Command fieldsync replays and edits debounced fields.
package main

import (
	"github.com/tebeka/atexit"

	"github.com/sarchlab/fieldsync/cmd/fieldsync/cmd"
)

func main() {
	atexit.Exit(cmd.Execute())
}
