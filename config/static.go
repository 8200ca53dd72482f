package config

import "github.com/kelseyhightower/envconfig"

// StaticConfig is the process-wide bring-up configuration, loaded once at
// startup from flags/environment. It never changes after cmd/lumacastd
// finishes wiring the server — live, client-mutable parameters live in
// Registry instead.
type StaticConfig struct {
	Port            int    `envconfig:"PORT" default:"8080"`
	FPS             int    `envconfig:"FPS" default:"30"`
	DisplayNum      string `envconfig:"DISPLAY_NUM" default:"99"`
	WebRTCPublicIP  string `envconfig:"WEBRTC_PUBLIC_IP" default:""`
	TestPattern     bool   `envconfig:"TEST_PATTERN" default:"false"`
}

// LoadStaticConfig reads StaticConfig from the environment, applying the
// defaults above for anything unset.
func LoadStaticConfig() (StaticConfig, error) {
	var c StaticConfig
	if err := envconfig.Process("", &c); err != nil {
		return StaticConfig{}, err
	}
	return c, nil
}
