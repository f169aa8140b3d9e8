//go:build !linux

package indicator

import "fmt"

func openLine(chipPath, lineName string, initial int) (output, error) {
	return nil, fmt.Errorf("indicator: gpio unsupported on this platform")
}

var openLineFn = openLine
