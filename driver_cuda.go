//go:build cuda

package gotrace

import (
	"github.com/golangcuda/gotrace/internal/driver"
	"github.com/golangcuda/gotrace/internal/driver/cudrv"
)

func defaultDriver(device int) (driver.Driver, error) {
	return cudrv.Open(device)
}
