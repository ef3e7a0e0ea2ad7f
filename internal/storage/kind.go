package storage

import (
	"fmt"
	"strings"
)

// Kind selects which provider services a key. The same key under two kinds
// names two unrelated entries.
type Kind int

const (
	KeyValue Kind = iota
	JSONFile
	BinaryFile
	Database
	Cloud
)

var kindNames = [...]string{
	KeyValue:   "keyvalue",
	JSONFile:   "jsonfile",
	BinaryFile: "binaryfile",
	Database:   "database",
	Cloud:      "cloud",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Kinds returns every storage kind, Cloud included.
func Kinds() []Kind {
	return []Kind{KeyValue, JSONFile, BinaryFile, Database, Cloud}
}

func ParseKind(name string) (Kind, error) {
	normalized := strings.NewReplacer("-", "", "_", "", " ", "").Replace(strings.ToLower(strings.TrimSpace(name)))
	for k, n := range kindNames {
		if n == normalized {
			return Kind(k), nil
		}
	}
	switch normalized {
	case "kv":
		return KeyValue, nil
	case "json":
		return JSONFile, nil
	case "binary":
		return BinaryFile, nil
	case "db", "sql":
		return Database, nil
	case "remote":
		return Cloud, nil
	}
	return 0, fmt.Errorf("unknown storage kind: %q", name)
}
