// Package profile loads connection defaults for an engine from a TOML file, so they need not be repeated in the
// environment of every command.
package profile

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/swdunlop/qlik-go/qlik"
)

// A Profile describes how to reach an engine.
type Profile struct {
	URL         string `toml:"url"`
	Certs       string `toml:"certs"`       // PEM file with the engine's CA certificates
	Credentials string `toml:"credentials"` // sent as the Authorization header
	Timeout     string `toml:"timeout"`     // Go duration, such as "30s"
	LogLevel    string `toml:"logLevel"`
}

// Load reads a profile from the TOML file at path.
func Load(path string) (*Profile, error) {
	var p Profile
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := toml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf(`%w while parsing profile %q`, err, path)
	}
	if err := p.validate(); err != nil {
		return nil, fmt.Errorf(`%w in profile %q`, err, path)
	}
	return &p, nil
}

// Merge returns a copy of p with every non-empty field of override applied.
func (p Profile) Merge(override Profile) Profile {
	if override.URL != `` {
		p.URL = override.URL
	}
	if override.Certs != `` {
		p.Certs = override.Certs
	}
	if override.Credentials != `` {
		p.Credentials = override.Credentials
	}
	if override.Timeout != `` {
		p.Timeout = override.Timeout
	}
	if override.LogLevel != `` {
		p.LogLevel = override.LogLevel
	}
	return p
}

// Options returns the session options described by the profile.
func (p Profile) Options() ([]qlik.Option, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	var options []qlik.Option
	if p.Certs != `` {
		options = append(options, qlik.CertFile(p.Certs))
	}
	if p.Credentials != `` {
		options = append(options, qlik.Header(`Authorization`, p.Credentials))
	}
	if p.Timeout != `` {
		d, _ := time.ParseDuration(p.Timeout) // checked by validate
		options = append(options, qlik.Timeout(d))
	}
	return options, nil
}

func (p *Profile) validate() error {
	if p.URL != `` && !strings.HasPrefix(p.URL, `ws://`) && !strings.HasPrefix(p.URL, `wss://`) {
		return fmt.Errorf(`url %q is not a websocket url, it should start with ws:// or wss://`, p.URL)
	}
	if p.Timeout != `` {
		d, err := time.ParseDuration(p.Timeout)
		if err != nil {
			return fmt.Errorf(`%w while parsing timeout`, err)
		}
		if d < 0 {
			return fmt.Errorf(`timeout must not be negative, got %v`, d)
		}
	}
	return nil
}
