//go:build !statsview

package statsview

import "io"

const Enabled = false

const DefaultAddr = ""

func Start(addr string, w io.Writer) {}
