//go:build !cuda

package gotrace

import "github.com/golangcuda/gotrace/internal/driver"

func defaultDriver(int) (driver.Driver, error) {
	return nil, driver.ErrNoDriver
}
