package server

import "time"

// Config holds the TCP listener settings.
type Config struct {
	// Addr is the listen address.
	Addr string `mapstructure:"addr" validate:"required" default:"localhost:7878"`
	// AdvertiseAddr is the address announced to the registry. Defaults to the listener's address.
	AdvertiseAddr string `mapstructure:"advertise_addr"`

	// ReadTimeout bounds the time to receive a whole request, measured from accept. Zero disables it.
	ReadTimeout  time.Duration `mapstructure:"read_timeout" validate:"gte=0" default:"30s"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"gte=0" default:"10s"`
	// MaxRequestBytes is the largest request document accepted.
	MaxRequestBytes int64 `mapstructure:"max_request_bytes" validate:"gt=0" default:"8388608"`

	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0" default:"5s"`
}
