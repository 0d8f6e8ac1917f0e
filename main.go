// ./main.go
package main

import (
	"github.com/xkilldash9x/droidpilot/cmd"
)

func main() {
	cmd.Execute()
}
