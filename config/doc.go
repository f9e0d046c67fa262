// Package config loads the xywire controller configuration.
//
// A Loader merges one or more layers over the built-in defaults. Layers are
// JSON or YAML files, picked by extension, and only the keys present in a
// layer override earlier values, so a site file can change one device
// setting without repeating the rest. XYWIRE_* environment variables are
// applied last:
//
//	loader := config.NewLoader()
//	loader.AddLayer("config/base.yaml")
//	loader.AddLayer("config/living-room.yaml")
//	loader.EnableValidation(true)
//
//	cfg, err := loader.Load()
//
// Durations are written as Go duration strings ("200ms", "2s"). Validation
// combines go-playground/validator struct tags with cross-field rules such as
// unique device names and the settings each store mode needs.
package config
