// Package contracts ships the marketplace contract artifact.
package contracts

import _ "embed"

// Marketplace is the compiled artifact of the marketplace contract. Only its
// "abi" member is read.
//
//go:embed Marketplace.json
var Marketplace []byte
