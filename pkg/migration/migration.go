// Package migration upgrades stored collection documents from legacy schema
// versions to the current one before the rest of the engine touches them.
package migration

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"quickreply/pkg/errors"
)

// Kind identifies which collection a document belongs to.
type Kind string

const (
	KindGroups    Kind = "groups"
	KindTemplates Kind = "templates"
	KindConfig    Kind = "config"
)

const (
	// LegacyVersion is the implicit version of any document that carries no
	// version field, including bare-array documents written by old builds.
	LegacyVersion = "0.0.0"
	// CurrentVersion is the terminal schema version.
	CurrentVersion = "1.0.0"
)

// knownVersions is the ordered list of schema versions. Migration always
// walks this list forward.
var knownVersions = []string{LegacyVersion, CurrentVersion}

// DetectVersion returns the schema version of a raw stored document. A nil or
// empty document, a bare array, and an object without a version field are all
// treated as legacy.
func DetectVersion(raw []byte) string {
	if len(raw) == 0 {
		return LegacyVersion
	}
	var head struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		// Bare arrays (and anything else that is not an object) are legacy.
		return LegacyVersion
	}
	if head.Version == "" {
		return LegacyVersion
	}
	return head.Version
}

// NeedsMigration reports whether a document at the given version must be
// upgraded.
func NeedsMigration(version string) bool {
	return version != CurrentVersion
}

// MigrationPath returns the ordered versions to traverse when upgrading from
// one version to another, excluding from and including to. A same-version
// request yields an empty path; unknown versions fail with a migration error.
func MigrationPath(from, to string) ([]string, error) {
	fromIdx, toIdx := -1, -1
	for i, v := range knownVersions {
		if v == from {
			fromIdx = i
		}
		if v == to {
			toIdx = i
		}
	}
	if fromIdx == -1 || toIdx == -1 || fromIdx > toIdx {
		return nil, errors.Migration("migration.MigrationPath", "no migration path from %q to %q", from, to)
	}
	path := make([]string, 0, toIdx-fromIdx)
	for i := fromIdx + 1; i <= toIdx; i++ {
		path = append(path, knownVersions[i])
	}
	return path, nil
}

// collectionField returns the name of the envelope field holding a kind's
// payload.
func collectionField(kind Kind) string {
	return string(kind)
}

// Upgrade migrates a raw document of the given kind to the current schema,
// returning the normalized envelope. Fields already present in records are
// preserved verbatim; fields the current schema requires are filled with
// deterministic defaults.
func Upgrade(raw []byte, kind Kind, accountID string) (map[string]any, error) {
	from := DetectVersion(raw)
	path, err := MigrationPath(from, CurrentVersion)
	if err != nil {
		return nil, err
	}

	doc, err := decode(raw, kind)
	if err != nil {
		return nil, err
	}
	for _, step := range path {
		switch step {
		case CurrentVersion:
			doc = upgradeToV1(doc, kind, accountID)
		default:
			return nil, errors.Migration("migration.Upgrade", "no upgrader registered for version %q", step)
		}
	}
	return doc, nil
}

// decode normalizes the stored bytes to an envelope-shaped map, accepting
// both the legacy bare formats and object wrappers.
func decode(raw []byte, kind Kind) (map[string]any, error) {
	field := collectionField(kind)
	if len(raw) == 0 {
		return map[string]any{field: emptyPayload(kind)}, nil
	}

	var asObject map[string]any
	if err := json.Unmarshal(raw, &asObject); err == nil {
		if asObject == nil {
			return map[string]any{field: emptyPayload(kind)}, nil
		}
		return asObject, nil
	}

	// Legacy bulk format: the document is the collection array itself.
	var asArray []any
	if err := json.Unmarshal(raw, &asArray); err == nil {
		return map[string]any{field: asArray}, nil
	}

	return nil, errors.Migration("migration.decode", "document is neither a JSON object nor an array")
}

func emptyPayload(kind Kind) any {
	if kind == KindConfig {
		return map[string]any{}
	}
	return []any{}
}

// upgradeToV1 fills every field introduced by schema 1.0.0 that is missing
// from a legacy document.
func upgradeToV1(doc map[string]any, kind Kind, accountID string) map[string]any {
	field := collectionField(kind)
	out := map[string]any{
		"version":   CurrentVersion,
		"accountId": accountID,
	}
	if existing, ok := doc["accountId"].(string); ok && existing != "" {
		out["accountId"] = existing
	}

	switch kind {
	case KindGroups:
		items, _ := doc[field].([]any)
		upgraded := make([]any, 0, len(items))
		for _, item := range items {
			record, ok := item.(map[string]any)
			if !ok {
				continue
			}
			setDefault(record, "expanded", true)
			setDefault(record, "parentId", nil)
			setDefault(record, "order", float64(0))
			upgraded = append(upgraded, record)
		}
		out[field] = upgraded
	case KindTemplates:
		items, _ := doc[field].([]any)
		upgraded := make([]any, 0, len(items))
		for _, item := range items {
			record, ok := item.(map[string]any)
			if !ok {
				continue
			}
			setDefault(record, "usageCount", float64(0))
			setDefault(record, "lastUsedAt", nil)
			setDefault(record, "order", float64(0))
			upgraded = append(upgraded, record)
		}
		out[field] = upgraded
	case KindConfig:
		record, ok := doc[field].(map[string]any)
		if !ok {
			// Legacy config documents store the object at the top level.
			record = map[string]any{}
			for k, v := range doc {
				if k != "version" && k != "accountId" {
					record[k] = v
				}
			}
		}
		setDefault(record, "sendMode", "original")
		setDefault(record, "expandedGroups", []any{})
		setDefault(record, "lastSelectedGroupId", nil)
		setDefault(record, "accountId", out["accountId"])
		out[field] = record
	}
	return out
}

// setDefault sets key to value only when the record does not already carry it.
func setDefault(record map[string]any, key string, value any) {
	if _, ok := record[key]; !ok {
		record[key] = value
	}
}

// ValidateMigratedData checks the structural invariants every migrated
// document must satisfy, failing with a message naming the violated one.
func ValidateMigratedData(doc map[string]any, kind Kind) error {
	const op = "migration.ValidateMigratedData"
	if doc == nil {
		return errors.Migration(op, "migrated %s document is null", kind)
	}
	if v, ok := doc["version"].(string); !ok || v == "" {
		return errors.Migration(op, "migrated %s document is missing the version field", kind)
	}
	if id, ok := doc["accountId"].(string); !ok || id == "" {
		return errors.Migration(op, "migrated %s document is missing the accountId field", kind)
	}
	field := collectionField(kind)
	payload, ok := doc[field]
	if !ok {
		return errors.Migration(op, "migrated %s document is missing the %q collection field", kind, field)
	}
	if kind == KindConfig {
		if _, ok := payload.(map[string]any); !ok {
			return errors.Migration(op, "migrated %s document field %q is not an object", kind, field)
		}
	} else {
		if _, ok := payload.([]any); !ok {
			return errors.Migration(op, "migrated %s document field %q is not an array", kind, field)
		}
	}
	return nil
}

// BackupPath returns the timestamp-suffixed backup file name for a document,
// next to the original.
func BackupPath(originalPath string, now time.Time) string {
	stamp := now.UTC().Format("2006-01-02T15:04:05.000Z")
	stamp = strings.ReplaceAll(stamp, ":", "-")
	stamp = strings.ReplaceAll(stamp, ".", "-")
	return originalPath + ".backup-" + stamp
}

// CreateBackup persists the pre-migration document next to the original so a
// failed or incorrect migration stays recoverable. It returns the backup path.
func CreateBackup(raw []byte, originalPath string) (string, error) {
	backupPath := BackupPath(originalPath, time.Now())
	if err := os.WriteFile(backupPath, raw, 0644); err != nil {
		return "", errors.Storage("migration.CreateBackup", fmt.Sprintf("failed to write backup %s", backupPath), err)
	}
	return backupPath, nil
}

// EnsureCurrent upgrades raw to the current schema if needed. It returns the
// (possibly rewritten) document bytes and whether a migration was applied.
// A backup of the original document is written before any upgrade.
func EnsureCurrent(raw []byte, kind Kind, accountID, originalPath string) ([]byte, bool, error) {
	if !NeedsMigration(DetectVersion(raw)) {
		return raw, false, nil
	}

	if len(raw) > 0 {
		if _, err := CreateBackup(raw, originalPath); err != nil {
			return nil, false, err
		}
	}

	doc, err := Upgrade(raw, kind, accountID)
	if err != nil {
		return nil, false, err
	}
	if err := ValidateMigratedData(doc, kind); err != nil {
		return nil, false, err
	}

	migrated, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, false, errors.Migration("migration.EnsureCurrent", "failed to encode migrated %s document: %v", kind, err)
	}
	return migrated, true, nil
}
