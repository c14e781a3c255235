//go:build !linux
// +build !linux

package inventory

// stubSource is used on non-Linux systems where rtnetlink is unavailable.
type stubSource struct{}

// NewNetlinkSource returns a stub link source on non-Linux systems
func NewNetlinkSource() LinkSource {
	logger.Warn("Using stub link source - netlink functionality only available on Linux")
	return &stubSource{}
}

func (s *stubSource) Links() ([]Link, error) {
	return nil, errNotLinux
}

func (s *stubSource) DefaultRoutes() ([]Route, error) {
	return nil, errNotLinux
}

func (s *stubSource) RouteGet(dst string) (string, error) {
	return "", errNotLinux
}
