package config

import "errors"

// ErrConfigInvalid marks malformed TOML, missing required keys, or any
// violated safe-point/fan-curve invariant. Always fatal at startup.
var ErrConfigInvalid = errors.New("config invalid")
