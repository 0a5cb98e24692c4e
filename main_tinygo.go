//go:build tinygo && rp2040

package main

import (
	"picovga/app"
	"picovga/hal"
)

func main() {
	app.Run(hal.New())
}
