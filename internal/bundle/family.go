package bundle

import (
	"crypto/sha1"
	"crypto/sha256"
	"hash"
)

// Family carries the per-format constants that distinguish passes from
// orders. The digest split (SHA-1 for passes, SHA-256 for orders) is a Wallet
// format requirement, not a choice.
type Family struct {
	Name              string
	PathComponent     string
	PrimaryFile       string
	ContentType       string
	BundleExtension   string
	AuthScheme        string
	UpdatedSinceParam string
	NewHash           func() hash.Hash
}

var Passes = Family{
	Name:              "pass",
	PathComponent:     "passes",
	PrimaryFile:       "pass.json",
	ContentType:       "application/vnd.apple.pkpass",
	BundleExtension:   ".pkpass",
	AuthScheme:        "ApplePass",
	UpdatedSinceParam: "passesUpdatedSince",
	NewHash:           sha1.New,
}

var Orders = Family{
	Name:              "order",
	PathComponent:     "orders",
	PrimaryFile:       "order.json",
	ContentType:       "application/vnd.apple.order",
	BundleExtension:   ".order",
	AuthScheme:        "AppleOrder",
	UpdatedSinceParam: "ordersUpdatedSince",
	NewHash:           sha256.New,
}

// BundledPassesContentType is the MIME type of a multi-pass archive.
const BundledPassesContentType = "application/vnd.apple.pkpasses"
