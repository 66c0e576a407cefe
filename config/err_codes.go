package config

const (
	CodeInvalidConfig = "INVALID_CONFIG"
	CodeInvalidFlags  = "INVALID_FLAGS"
	CodeConfigFile    = "CONFIG_FILE_ERROR"
)
