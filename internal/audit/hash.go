package audit

import (
	"encoding/hex"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"

	"github.com/ziadkadry99/personaengine/internal/db"
)

// hashVersion is part of the hashed content so a future change of the
// hashed field set cannot collide with existing hashes.
const hashVersion = 1

// encMode uses Core Deterministic Encoding (RFC 8949 §4.2), so the same
// entry always hashes to the same bytes.
var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("audit: CBOR encoder initialization failed: " + err.Error())
	}
}

// hashed is the canonical form of an entry. Slices are never nil so an
// entry hashes the same before and after a storage round trip.
type hashed struct {
	Version              int      `cbor:"v"`
	PrimaryPersona       string   `cbor:"primary_persona"`
	SecondaryPersonas    []string `cbor:"secondary_personas"`
	MergeStrategy        string   `cbor:"merge_strategy"`
	CapabilitiesAdded    []string `cbor:"capabilities_added"`
	CapabilitiesRemoved  []string `cbor:"capabilities_removed"`
	PermissionsGranted   []string `cbor:"permissions_granted"`
	HistoryAccessGranted bool     `cbor:"history_access_granted"`
	OperatorID           string   `cbor:"operator_id"`
	CreatedAt            string   `cbor:"created_at"`
}

// ComputeHash returns the hex BLAKE3-256 digest of the entry's content.
func ComputeHash(e Entry) (string, error) {
	data, err := encMode.Marshal(hashed{
		Version:              hashVersion,
		PrimaryPersona:       e.PrimaryPersona,
		SecondaryPersonas:    orEmpty(e.SecondaryPersonas),
		MergeStrategy:        e.MergeStrategy,
		CapabilitiesAdded:    orEmpty(e.CapabilityDiff.Added),
		CapabilitiesRemoved:  orEmpty(e.CapabilityDiff.Removed),
		PermissionsGranted:   orEmpty(e.PermissionDiff.Granted),
		HistoryAccessGranted: e.HistoryAccessGranted,
		OperatorID:           e.OperatorID,
		CreatedAt:            db.FormatTime(e.CreatedAt),
	})
	if err != nil {
		return "", fmt.Errorf("encoding audit entry: %w", err)
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
