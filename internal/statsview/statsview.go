//go:build statsview

package statsview

import (
	"fmt"
	"io"

	"github.com/go-echarts/statsview"
	"github.com/go-echarts/statsview/viewer"
)

// Enabled reports whether this build carries the stats server.
const Enabled = true

// DefaultAddr is used when Start is given an empty address.
const DefaultAddr = "localhost:12600"

const dashboardPath = "/debug/statsview"

// Start serves the charts on addr from a background goroutine and prints
// the dashboard URL to w. The pprof handlers sit next to it under
// /debug/pprof/.
func Start(addr string, w io.Writer) {
	if addr == "" {
		addr = DefaultAddr
	}
	viewer.SetConfiguration(viewer.WithAddr(addr))
	views := statsview.New()
	go views.Start()
	fmt.Fprintf(w, "statsview: http://%s%s\n", addr, dashboardPath)
}
