package testdata

import (
	_ "embed"
)

var (
	// LegacyPHPData is a data.json written by the PHP release.
	//go:embed legacy_php.json
	LegacyPHPData []byte

	// LegacyFlaskData is a data.json written by the Flask prototype.
	//go:embed legacy_flask.json
	LegacyFlaskData []byte
)
