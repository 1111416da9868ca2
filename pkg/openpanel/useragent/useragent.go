// Package useragent supplies the user-agent string sent with every request.
package useragent

import (
	"fmt"
	"runtime"
)

// Provider returns a best-effort user-agent string.
type Provider interface {
	UserAgent() string
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func() string

// UserAgent implements Provider.
func (f ProviderFunc) UserAgent() string { return f() }

// Static returns a Provider that always reports s.
func Static(s string) Provider {
	return ProviderFunc(func() string { return s })
}

// Default returns a Provider describing the SDK and the Go runtime:
//
//	OpenPanelGo/<version> (<GOOS>; <GOARCH>; <go version>)
func Default(version string) Provider {
	ua := fmt.Sprintf("OpenPanelGo/%s (%s; %s; %s)",
		version, runtime.GOOS, runtime.GOARCH, runtime.Version())
	return Static(ua)
}

// WithSuffix appends suffix to the agent reported by p, separated by a space.
// An empty suffix returns p unchanged.
func WithSuffix(p Provider, suffix string) Provider {
	if suffix == "" {
		return p
	}
	return ProviderFunc(func() string {
		base := p.UserAgent()
		if base == "" {
			return suffix
		}
		return base + " " + suffix
	})
}
